package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/inventory"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the cart store: per-user, per-seller carts whose stock checks
// are advisory. Checkout re-validates authoritatively.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (Totals, error)
	SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (Totals, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (Totals, error)
	Clear(ctx context.Context, userID uuid.UUID) (Totals, error)
	ListItems(userID uuid.UUID) View
	Totals(ctx context.Context, userID uuid.UUID) (Totals, error)
}

type service struct {
	repo   *Repository
	ledger *inventory.Ledger
	tx     txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, ledger *inventory.Ledger, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, ledger: ledger, tx: tx}, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (Totals, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Totals{}, err
	}
	if quantity <= 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	var totals Totals
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledger := s.ledger.WithTx(tx)

		product, err := ledger.Lookup(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Visible {
			return inventory.ProductUnavailable(product)
		}

		cart, err := repo.EnsureCart(ctx, userID, product.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure cart")
		}

		existing := 0
		item, err := repo.FindItem(ctx, userID, productID)
		switch {
		case err == nil:
			existing = item.Quantity
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		newQuantity := existing + quantity
		if _, err := ledger.Check(ctx, productID, newQuantity); err != nil {
			return err
		}
		if err := repo.UpsertItem(ctx, newItem(cart.ID, productID, newQuantity)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}

		totals, err = totalsOf(ctx, repo, userID)
		return err
	})
	if err != nil {
		return Totals{}, normalize(err, "add cart item")
	}
	return totals, nil
}

func (s *service) SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (Totals, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Totals{}, err
	}
	if quantity < 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	var totals Totals
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindItem(ctx, userID, productID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
			}
			if quantity != 0 {
				return ItemNotFound(productID)
			}
			// already absent: setting zero again lands on the same state
			totals, err = totalsOf(ctx, repo, userID)
			return err
		}

		if quantity == 0 {
			if err := repo.DeleteItem(ctx, item.CartID, productID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
			}
		} else {
			if _, err := s.ledger.WithTx(tx).Check(ctx, productID, quantity); err != nil {
				return err
			}
			if err := repo.UpsertItem(ctx, newItem(item.CartID, productID, quantity)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		}

		totals, err = totalsOf(ctx, repo, userID)
		return err
	})
	if err != nil {
		return Totals{}, normalize(err, "update cart item")
	}
	return totals, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (Totals, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Totals{}, err
	}

	var totals Totals
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindItem(ctx, userID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ItemNotFound(productID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		if err := repo.DeleteItem(ctx, item.CartID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}

		totals, err = totalsOf(ctx, repo, userID)
		return err
	})
	if err != nil {
		return Totals{}, normalize(err, "remove cart item")
	}
	return totals, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (Totals, error) {
	if userID == uuid.Nil {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteAll(ctx, userID)
	})
	if err != nil {
		return Totals{}, normalize(err, "clear cart")
	}
	return Totals{TotalItems: 0}, nil
}

func (s *service) ListItems(userID uuid.UUID) View {
	return View{repo: s.repo, userID: userID}
}

func (s *service) Totals(ctx context.Context, userID uuid.UUID) (Totals, error) {
	totals, err := totalsOf(ctx, s.repo, userID)
	if err != nil {
		return Totals{}, normalize(err, "count cart items")
	}
	return totals, nil
}

func totalsOf(ctx context.Context, repo *Repository, userID uuid.UUID) (Totals, error) {
	total, err := repo.TotalItems(ctx, userID)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
	}
	return Totals{TotalItems: total}, nil
}

func validateIDs(userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return nil
}

// normalize keeps typed errors as they are and classifies anything else
// (commit failures, driver errors) as a dependency error.
func normalize(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
