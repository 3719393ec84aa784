package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// Repository exposes persistence for carts and cart items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// EnsureCart returns the (user, seller) cart, creating it when absent.
// Concurrent creators converge on the same row through the unique key.
func (r *Repository) EnsureCart(ctx context.Context, userID, sellerID uuid.UUID) (*models.Cart, error) {
	candidate := models.Cart{UserID: userID, SellerID: sellerID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "seller_id"}},
			DoNothing: true,
		}).
		Create(&candidate).Error
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND seller_id = ?", userID, sellerID).
		First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindItem locates the user's item for productID across all their carts.
// A product has one seller, so at most one row matches.
func (r *Repository) FindItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.*").
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ? AND cart_items.product_id = ?", userID, productID).
		Take(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertItem writes the item's quantity, inserting the row if needed.
func (r *Repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(item).Error
}

// DeleteItem removes one item and the cart if that was its last item.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.pruneEmptyCarts(ctx, []uuid.UUID{cartID})
}

// DeleteItems removes the given products from the user's carts and drops
// any cart left empty.
func (r *Repository) DeleteItems(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	var cartIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("user_id = ?", userID).
		Pluck("id", &cartIDs).Error; err != nil {
		return err
	}
	if len(cartIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("cart_id IN ? AND product_id IN ?", cartIDs, productIDs).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.pruneEmptyCarts(ctx, cartIDs)
}

// DeleteAll removes every cart and item the user owns.
func (r *Repository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	owned := r.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)
	if err := r.db.WithContext(ctx).
		Where("cart_id IN (?)", owned).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Cart{}).Error
}

func (r *Repository) pruneEmptyCarts(ctx context.Context, cartIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id IN ?", cartIDs).
		Where("NOT EXISTS (SELECT 1 FROM cart_items WHERE cart_items.cart_id = carts.id)").
		Delete(&models.Cart{}).Error
}

// TotalItems sums item quantities across all the user's carts.
func (r *Repository) TotalItems(ctx context.Context, userID uuid.UUID) (int, error) {
	var total sql.NullInt64
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("SUM(cart_items.quantity)").
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// lines builds the cart/product join ordered by seller, which the grouped
// view and the checkout snapshot rely on.
func (r *Repository) lines(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) *gorm.DB {
	q := r.db.WithContext(ctx).
		Table("cart_items").
		Select(`cart_items.cart_id AS cart_id,
			carts.seller_id AS seller_id,
			COALESCE(sellers.name, '') AS seller_name,
			cart_items.product_id AS product_id,
			products.name AS product_name,
			products.price_cents AS price_cents,
			cart_items.quantity AS quantity,
			products.stock AS stock,
			products.visible AS visible`).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Joins("LEFT JOIN sellers ON sellers.id = carts.seller_id").
		Where("carts.user_id = ?", userID)
	if productIDs != nil {
		q = q.Where("cart_items.product_id IN ?", productIDs)
	}
	return q.Order("carts.seller_id ASC").Order("products.name ASC").Order("cart_items.product_id ASC")
}

// Snapshot reads the user's cart lines joined with current product data.
// When productIDs is non-nil only those products are returned; ids that are
// not in the cart simply produce no row.
func (r *Repository) Snapshot(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) ([]Line, error) {
	if productIDs != nil && len(productIDs) == 0 {
		return nil, nil
	}
	var rows []Line
	if err := r.lines(ctx, userID, productIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// StreamLines feeds the user's cart lines to fn one row at a time, stopping
// early when fn returns false.
func (r *Repository) StreamLines(ctx context.Context, userID uuid.UUID, fn func(Line) bool) error {
	q := r.lines(ctx, userID, nil)
	rows, err := q.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		if err := q.ScanRows(rows, &line); err != nil {
			return err
		}
		if !fn(line) {
			return nil
		}
	}
	return rows.Err()
}

func newItem(cartID, productID uuid.UUID, qty int) *models.CartItem {
	now := time.Now().UTC()
	return &models.CartItem{CartID: cartID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now}
}
