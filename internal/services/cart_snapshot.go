package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

const defaultSnapshotConcurrency = 8

// CartSnapshotDeps bundles collaborators for the cart snapshot reader.
type CartSnapshotDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Concurrency int
}

type cartSnapshotReader struct {
	carts       repositories.CartRepository
	products    repositories.ProductRepository
	concurrency int
	policy      *bluemonday.Policy
}

// NewCartSnapshotReader resolves carts against live product data.
func NewCartSnapshotReader(deps CartSnapshotDeps) (CartSnapshotReader, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart snapshot: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart snapshot: product repository is required")
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSnapshotConcurrency
	}
	return &cartSnapshotReader{
		carts:       deps.Carts,
		products:    deps.Products,
		concurrency: concurrency,
		policy:      bluemonday.StrictPolicy(),
	}, nil
}

// Snapshot fails with ErrCartEmpty for an empty cart and ErrProductNotFound when a line
// references a product that no longer exists.
func (r *cartSnapshotReader) Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CartSnapshot{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	cart, err := r.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("load cart %s: %w", userID, err)
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity > 0 && strings.TrimSpace(item.ProductID) != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return domain.CartSnapshot{}, ErrCartEmpty
	}

	lines := make([]domain.CartLine, len(items))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i, item := range items {
		i, item := i, item
		group.Go(func() error {
			product, err := r.products.FindByID(gctx, item.ProductID)
			if err != nil {
				if repositories.IsNotFound(err) {
					return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
				}
				return fmt.Errorf("load product %s: %w", item.ProductID, err)
			}
			lines[i] = domain.CartLine{
				ProductID:          product.ID,
				Name:               r.sanitize(product.Name),
				Price:              product.Price,
				DiscountPercentage: product.DiscountPercentage,
				Quantity:           item.Quantity,
				Size:               r.sanitize(item.Size),
				Image:              product.Image,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return domain.CartSnapshot{}, err
	}
	return domain.CartSnapshot{UserID: userID, Lines: lines}, nil
}

func (r *cartSnapshotReader) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(s)))
}
