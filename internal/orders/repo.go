package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/pagination"
)

// Repository defines persistence operations for orders, order items and
// payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ApplyOrderPatch(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, patch OrderPatch) error
	ApplyPaymentPatch(ctx context.Context, orderID uuid.UUID, from enums.PaymentStatus, patch PaymentPatch) error
}

// ErrStatusChanged is returned by the patch methods when the row is no
// longer in the expected status.
var ErrStatusChanged = errors.New("status changed concurrently")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order row only; items and payment are written by
// their own calls so each step can fail on its own.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// LockOrder loads an order for a status change. On postgres the row stays
// locked until the surrounding transaction ends, which also serializes
// payment changes on the same order.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	q := r.db.WithContext(ctx).Where("id = ?", orderID)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := q.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_name ASC").
		Order("product_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_name ASC").Order("product_id ASC")
		}).
		Preload("Payment").
		Preload("Shipment").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	// the catalog may have dropped the seller; the order still renders
	var seller models.Seller
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id = ?", order.SellerID).Limit(1).Find(&seller).Error; err != nil {
		return nil, err
	}

	return newOrderDetail(order, seller.Name), nil
}

type orderSummaryRecord struct {
	ID            uuid.UUID         `gorm:"column:id"`
	UserID        uuid.UUID         `gorm:"column:user_id"`
	SellerID      uuid.UUID         `gorm:"column:seller_id"`
	SellerName    string            `gorm:"column:seller_name"`
	Status        enums.OrderStatus `gorm:"column:status"`
	TotalCents    int64             `gorm:"column:total_cents"`
	ItemCount     int               `gorm:"column:item_count"`
	PaymentMethod *string           `gorm:"column:payment_method"`
	PaymentStatus *string           `gorm:"column:payment_status"`
	OrderDate     time.Time         `gorm:"column:order_date"`
}

func (rec orderSummaryRecord) toSummary() OrderSummary {
	summary := OrderSummary{
		ID:         rec.ID,
		UserID:     rec.UserID,
		SellerID:   rec.SellerID,
		SellerName: rec.SellerName,
		Status:     rec.Status,
		TotalCents: rec.TotalCents,
		ItemCount:  rec.ItemCount,
		OrderDate:  rec.OrderDate,
	}
	if rec.PaymentMethod != nil {
		summary.PaymentMethod = enums.PaymentMethod(*rec.PaymentMethod)
	}
	if rec.PaymentStatus != nil {
		summary.PaymentStatus = enums.PaymentStatus(*rec.PaymentStatus)
	}
	return summary
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return r.list(ctx, "o.user_id = ?", userID, params, filters)
}

func (r *repository) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return r.list(ctx, "o.seller_id = ?", sellerID, params, filters)
}

// list pages orders newest first on the (order_date, id) keyset.
func (r *repository) list(ctx context.Context, scope string, scopeID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	selectColumns := []string{
		"o.id AS id",
		"o.user_id AS user_id",
		"o.seller_id AS seller_id",
		"COALESCE(s.name, '') AS seller_name",
		"o.status AS status",
		"o.total_cents AS total_cents",
		"o.item_count AS item_count",
		"p.method AS payment_method",
		"p.status AS payment_status",
		"o.order_date AS order_date",
	}

	q := r.db.WithContext(ctx).
		Table("orders o").
		Select(strings.Join(selectColumns, ", ")).
		Joins("LEFT JOIN sellers s ON s.id = o.seller_id").
		Joins("LEFT JOIN payments p ON p.order_id = o.id").
		Where(scope, scopeID)

	if filters.Status != nil {
		q = q.Where("o.status = ?", string(*filters.Status))
	}
	if cursor != nil {
		q = q.Where("(o.order_date < ?) OR (o.order_date = ? AND o.id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var records []orderSummaryRecord
	if err := q.Order("o.order_date DESC").Order("o.id DESC").Limit(pagination.Probe(limit)).Scan(&records).Error; err != nil {
		return nil, err
	}

	records, next := pagination.Trim(records, limit, func(rec orderSummaryRecord) pagination.Cursor {
		return pagination.Cursor{At: rec.OrderDate, ID: rec.ID}
	})
	list := &OrderList{Orders: make([]OrderSummary, 0, len(records)), NextCursor: next}
	for _, rec := range records {
		list.Orders = append(list.Orders, rec.toSummary())
	}
	return list, nil
}

// ApplyOrderPatch updates the order only while it is still in status from.
// ErrStatusChanged means no row matched: the order is gone or another
// writer moved it first.
func (r *repository) ApplyOrderPatch(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, patch OrderPatch) error {
	return r.compareAndSet(ctx, &models.Order{}, "id = ?", orderID, string(from), patch.Updates())
}

func (r *repository) ApplyPaymentPatch(ctx context.Context, orderID uuid.UUID, from enums.PaymentStatus, patch PaymentPatch) error {
	return r.compareAndSet(ctx, &models.Payment{}, "order_id = ?", orderID, string(from), patch.Updates())
}

func (r *repository) compareAndSet(ctx context.Context, model any, where string, id uuid.UUID, from string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(model).Where(where, id).Where("status = ?", from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}
