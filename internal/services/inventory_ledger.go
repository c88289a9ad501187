package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/repositories"
)

// InventoryLedgerDeps bundles collaborators required to construct the inventory ledger.
type InventoryLedgerDeps struct {
	Inventory   repositories.InventoryRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type inventoryLedger struct {
	inventory repositories.InventoryRepository
	clock     func() time.Time
	newID     func() string
}

// NewInventoryLedger constructs the create-only reservation ledger.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory ledger: inventory repository is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "rsv_" + ulid.Make().String()
		}
	}
	return &inventoryLedger{
		inventory: deps.Inventory,
		clock:     defaultClock(deps.Clock),
		newID:     idGen,
	}, nil
}

// Reserve appends one reservation. It only writes, so it may follow the read phase of the
// caller's transaction. Each call adds an entry; callers reserve at most once per product and order.
func (l *inventoryLedger) Reserve(ctx context.Context, cmd ReserveCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if productID == "" || orderID == "" {
		return fmt.Errorf("%w: product and order are required", ErrValidation)
	}
	if strings.TrimSpace(cmd.SellerID) == "" {
		return fmt.Errorf("%w: product owner is required", ErrValidation)
	}
	if cmd.Quantity <= 0 {
		return fmt.Errorf("%w: reservation quantity must be positive", ErrValidation)
	}
	err := l.inventory.AppendReservation(ctx, productID, strings.TrimSpace(cmd.SellerID), domain.Reservation{
		ID:        l.newID(),
		OrderID:   orderID,
		BuyerID:   cmd.BuyerID,
		VariantID: cmd.VariantID,
		Quantity:  cmd.Quantity,
		CreatedAt: l.clock(),
	})
	return mapRepositoryError(err)
}
