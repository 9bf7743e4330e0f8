package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/tienda-online/api/internal/domain"
	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/repositories"
)

// CouponRepository stores coupons under coupons/{CODE}.
type CouponRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider}, nil
}

func (r *CouponRepository) doc(ctx context.Context, code string) (*firestore.DocumentRef, string, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, "", err
	}
	key := domain.NormalizeCouponCode(code)
	if key == "" {
		return nil, "", errors.New("coupons: code is required")
	}
	return client.Collection(couponsCollection).Doc(key), key, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ref, key, err := r.doc(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find", err)
	}
	var doc couponDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Coupon{}, fmt.Errorf("decode coupon %s: %w", key, err)
	}
	return doc.toDomain(key), nil
}

func (r *CouponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	ref, _, err := r.doc(ctx, coupon.Code)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, newCouponDocument(coupon))
	return pfirestore.WrapError("coupons.create", err)
}

func (r *CouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.Collection(couponsCollection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Coupon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("coupons.list", err)
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode coupon %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

// MarkUsed performs the used=false to true compare-and-set inside a transaction.
func (r *CouponRepository) MarkUsed(ctx context.Context, code, userID, orderNumber string, usedAt time.Time) (domain.Coupon, error) {
	ref, key, err := r.doc(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	var updated domain.Coupon
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", key, err)
		}
		current := doc.toDomain(key)
		if current.ClaimedBy(orderNumber) {
			updated = current
			return nil
		}
		if doc.Used {
			return repositories.Conflict("coupons.mark_used", "coupon %s already used", key)
		}
		at := usedAt.UTC()
		doc.Used = true
		doc.UsedBy = userID
		doc.UsedOrder = orderNumber
		doc.UsedAt = &at
		updated = doc.toDomain(key)
		return tx.Update(ref, []firestore.Update{
			{Path: "used", Value: true},
			{Path: "usedBy", Value: userID},
			{Path: "usedOrder", Value: orderNumber},
			{Path: "usedAt", Value: at},
		})
	})
	if err != nil {
		return domain.Coupon{}, wrapTxError("coupons.mark_used", err)
	}
	return updated, nil
}

// ReleaseClaim reverts a claim held by orderNumber inside a transaction.
func (r *CouponRepository) ReleaseClaim(ctx context.Context, code, orderNumber string) error {
	ref, key, err := r.doc(ctx, code)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", key, err)
		}
		if !doc.toDomain(key).ClaimedBy(orderNumber) {
			return repositories.Conflict("coupons.release", "coupon %s is not held by order %s", key, orderNumber)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "used", Value: false},
			{Path: "usedBy", Value: firestore.Delete},
			{Path: "usedOrder", Value: firestore.Delete},
			{Path: "usedAt", Value: firestore.Delete},
		})
	})
	return wrapTxError("coupons.release", err)
}

// wrapTxError keeps repository and ledger errors raised inside a transaction intact.
func wrapTxError(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if _, ok := repositories.LedgerCode(err); ok {
		return err
	}
	return pfirestore.WrapError(op, err)
}
