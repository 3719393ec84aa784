package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type seeded struct {
	buyer   models.User
	seller  models.Seller
	product models.Product
}

func seed(t *testing.T, db *gorm.DB, stock int) seeded {
	t.Helper()
	buyer := models.User{Email: uuid.NewString() + "@example.com", Name: "Buyer"}
	require.NoError(t, db.Create(&buyer).Error)
	seller := models.Seller{Name: "Acme"}
	require.NoError(t, db.Create(&seller).Error)
	product := models.Product{SellerID: seller.ID, Name: "Widget", PriceCents: 1000, Stock: stock, Visible: true}
	require.NoError(t, db.Create(&product).Error)
	return seeded{buyer: buyer, seller: seller, product: product}
}

// placeOrder writes an order the way checkout does: order, items, payment.
func placeOrder(t *testing.T, repo Repository, s seeded, qty int, at time.Time) models.Order {
	t.Helper()
	ctx := context.Background()
	order := models.Order{
		UserID:     s.buyer.ID,
		SellerID:   s.seller.ID,
		Status:     enums.OrderStatusPending,
		TotalCents: int64(qty) * s.product.PriceCents,
		ItemCount:  qty,
		OrderDate:  at.UTC(),
	}
	require.NoError(t, repo.CreateOrder(ctx, &order))
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{{
		OrderID:     order.ID,
		ProductID:   s.product.ID,
		ProductName: s.product.Name,
		Quantity:    qty,
		PriceCents:  s.product.PriceCents,
	}}))
	require.NoError(t, repo.CreatePayment(ctx, &models.Payment{
		OrderID:     order.ID,
		Method:      enums.PaymentMethodCOD,
		AmountCents: order.TotalCents,
		Status:      enums.PaymentStatusPending,
	}))
	return order
}

func statusPtr(s enums.OrderStatus) *enums.OrderStatus {
	return &s
}

func paymentStatusPtr(s enums.PaymentStatus) *enums.PaymentStatus {
	return &s
}
