package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tienda-online/api/internal/domain"
	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/repositories"
)

// CatalogRepository reads products and carts and applies stock ledger transitions.
type CatalogRepository struct {
	provider *pfirestore.Provider
	now      func() time.Time
}

var (
	_ repositories.ProductRepository = (*CatalogRepository)(nil)
	_ repositories.StockRepository   = (*CatalogRepository)(nil)
	_ repositories.CartRepository    = (*CatalogRepository)(nil)
)

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider, now: time.Now}, nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := client.Collection(productsCollection).Doc(productID).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return doc.toDomain(productID), nil
}

type stockMove func(doc *productDocument, qty int) bool

func (r *CatalogRepository) ReserveAndConfirmSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.apply(ctx, "stock.reserve_and_confirm", productID, qty, func(doc *productDocument, qty int) bool {
		if doc.Stock < qty {
			return false
		}
		doc.Stock -= qty
		doc.SoldStock += qty
		return true
	})
}

func (r *CatalogRepository) ReleaseReservation(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.apply(ctx, "stock.release", productID, qty, func(doc *productDocument, qty int) bool {
		if doc.ReservedStock < qty {
			return false
		}
		doc.ReservedStock -= qty
		doc.Stock += qty
		return true
	})
}

func (r *CatalogRepository) ConfirmReservedSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	return r.apply(ctx, "stock.confirm", productID, qty, func(doc *productDocument, qty int) bool {
		if doc.ReservedStock < qty {
			return false
		}
		doc.ReservedStock -= qty
		doc.SoldStock += qty
		return true
	})
}

func (r *CatalogRepository) apply(ctx context.Context, op, productID string, qty int, move stockMove) (domain.ProductStock, error) {
	if qty <= 0 {
		return domain.ProductStock{}, repositories.NewLedgerError(op, repositories.LedgerErrorInvalidQuantity, "quantity must be positive", nil)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ProductStock{}, err
	}
	ref := client.Collection(productsCollection).Doc(productID)

	var result domain.ProductStock
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewLedgerError(op, repositories.LedgerErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if !move(&doc, qty) {
			return repositories.NewLedgerError(op, repositories.LedgerErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", productID), nil)
		}
		result = doc.stock()
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: doc.Stock},
			{Path: "reservedStock", Value: doc.ReservedStock},
			{Path: "soldStock", Value: doc.SoldStock},
			{Path: "updatedAt", Value: r.now().UTC()},
		})
	})
	if err != nil {
		return domain.ProductStock{}, wrapTxError(op, err)
	}
	return result, nil
}

func (r *CatalogRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := client.Collection(cartsCollection).Doc(userID).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	return doc.toDomain(userID), nil
}

func (r *CatalogRepository) ClearCart(ctx context.Context, userID string) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(cartsCollection).Doc(userID).Set(ctx, map[string]any{
		"items":     []cartItemDocument{},
		"updatedAt": r.now().UTC(),
	}, firestore.MergeAll)
	return pfirestore.WrapError("carts.clear", err)
}
