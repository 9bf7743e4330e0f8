package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"

	domain "github.com/tienda-online/api/internal/domain"
	pfirestore "github.com/tienda-online/api/internal/platform/firestore"
	"github.com/tienda-online/api/internal/repositories"
)

// OrderRepository persists orders and reserves order numbers in order_numbers/{n}.
type OrderRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Create writes the order and its number index in one transaction. Create on the
// index document returns AlreadyExists when the number is taken.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("orders.create: order number is required")
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = ulid.Make().String()
	}

	orderRef := client.Collection(ordersCollection).Doc(order.ID)
	numberRef := client.Collection(orderNumbersCollection).Doc(order.OrderNumber)
	doc := newOrderDocument(order)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	}, pfirestore.WithTxAttempts(1))
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return order, nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(ordersCollection).Doc(order.ID)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, newOrderDocument(order))
	})
	return pfirestore.WrapError("orders.update", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return decodeOrder(snap)
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	iter := client.Collection(ordersCollection).Where("orderNumber", "==", orderNumber).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, repositories.NotFound("orders.find_by_number", "order number %s not found", orderNumber)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_number", err)
	}
	return decodeOrder(snap)
}

func (r *OrderRepository) NumberExists(ctx context.Context, orderNumber string) (bool, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return false, err
	}
	_, err = client.Collection(orderNumbersCollection).Doc(orderNumber).Get(ctx)
	switch {
	case err == nil:
		return true, nil
	case pfirestore.IsNotFound(err):
		return false, nil
	default:
		return false, pfirestore.WrapError("orders.number_exists", err)
	}
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(ordersCollection).Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return collectOrders(ctx, "orders.list_by_user", query)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(ordersCollection).Query
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	if filter.NeedsReconciliation {
		query = query.Where("metadata.needsReconciliation", "==", true)
	}
	query = query.OrderBy("createdAt", firestore.Desc)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return collectOrders(ctx, "orders.list", query)
}

func collectOrders(ctx context.Context, op string, query firestore.Query) ([]domain.Order, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}
