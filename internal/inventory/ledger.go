package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// Ledger owns every read and write of product stock. Validate and Check are
// advisory reads; Decrement is the only authoritative mutation and is safe
// under concurrent checkouts because the guard lives in the UPDATE itself.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx binds the ledger to a transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	if tx == nil {
		return l
	}
	return &Ledger{db: tx}
}

// Lookup loads the current catalog row for productID.
func (l *Ledger) Lookup(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := l.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ProductNotFound(productID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// Check returns the product when requested units can currently be sold,
// otherwise the named error explaining why not.
func (l *Ledger) Check(ctx context.Context, productID uuid.UUID, requested int) (*models.Product, error) {
	product, err := l.Lookup(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Visible {
		return product, ProductUnavailable(product)
	}
	if product.Stock < requested {
		return product, InsufficientStock(product, requested)
	}
	return product, nil
}

// Validate is the boolean form of Check. Only system failures are returned
// as errors; missing, hidden and short products all report false.
func (l *Ledger) Validate(ctx context.Context, productID uuid.UUID, requested int) (bool, error) {
	_, err := l.Check(ctx, productID, requested)
	if err == nil {
		return true, nil
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
		return false, nil
	}
	return false, err
}

// Decrement removes qty units with a guarded UPDATE. When the guard rejects
// the row the product is re-read to report what is actually left.
func (l *Ledger) Decrement(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := l.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	product, err := l.Lookup(ctx, productID)
	if err != nil {
		return err
	}
	return InsufficientStock(product, qty)
}

// Restock returns qty units, e.g. when an order is cancelled.
func (l *Ledger) Restock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := l.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock product")
	}
	if res.RowsAffected == 0 {
		return ProductNotFound(productID)
	}
	return nil
}
