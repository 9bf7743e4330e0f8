package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/tienda-online/api/internal/domain"
	"github.com/tienda-online/api/internal/repositories"
)

// StockLedgerDeps bundles collaborators for the stock ledger.
type StockLedgerDeps struct {
	Stock  repositories.StockRepository
	Logger Logger
}

type stockLedger struct {
	stock  repositories.StockRepository
	logger Logger
}

// NewStockLedger translates repository ledger codes into service errors.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock ledger: stock repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &stockLedger{stock: deps.Stock, logger: logger}, nil
}

// ReserveAndConfirmSale moves qty from stock to soldStock.
func (l *stockLedger) ReserveAndConfirmSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	stock, err := l.stock.ReserveAndConfirmSale(ctx, productID, qty)
	return stock, l.translate(ctx, "reserve_and_confirm", productID, qty, err)
}

// ReleaseReservation moves qty from reservedStock back to stock.
func (l *stockLedger) ReleaseReservation(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	stock, err := l.stock.ReleaseReservation(ctx, productID, qty)
	return stock, l.translate(ctx, "release", productID, qty, err)
}

// ConfirmReservedSale moves qty from reservedStock to soldStock.
func (l *stockLedger) ConfirmReservedSale(ctx context.Context, productID string, qty int) (domain.ProductStock, error) {
	stock, err := l.stock.ConfirmReservedSale(ctx, productID, qty)
	return stock, l.translate(ctx, "confirm", productID, qty, err)
}

func (l *stockLedger) translate(ctx context.Context, op, productID string, qty int, err error) error {
	if err == nil {
		l.logger(ctx, "ledger."+op, map[string]any{"productId": productID, "quantity": qty})
		return nil
	}
	code, ok := repositories.LedgerCode(err)
	if !ok {
		l.logger(ctx, "ledger."+op+"_failed", map[string]any{"productId": productID, "quantity": qty, "error": err.Error()})
		return fmt.Errorf("stock %s %s: %w", op, productID, err)
	}
	switch code {
	case repositories.LedgerErrorInsufficientStock:
		l.logger(ctx, "ledger.insufficient_stock", map[string]any{"productId": productID, "quantity": qty, "op": op})
		return fmt.Errorf("%w: %s", ErrInsufficientStock, productID)
	case repositories.LedgerErrorProductNotFound:
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	default:
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
}
