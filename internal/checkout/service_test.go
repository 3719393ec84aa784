package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/inventory"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/users"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/metrics"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
)

type fixture struct {
	db      *gorm.DB
	cart    cart.Service
	svc     Service
	outbox  *flakyOutbox
	metrics *metrics.CheckoutMetrics
}

// flakyOutbox delegates to the real outbox and can be told to fail the nth
// emit, which lets tests break a checkout after it has already written rows.
// afterEmit runs on the checkout's tx once an emit succeeded.
type flakyOutbox struct {
	next      *outbox.Service
	mu        sync.Mutex
	calls     int
	failAt    int
	afterEmit func(tx *gorm.DB, call int)
}

func (f *flakyOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fail := f.failAt > 0 && call == f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("outbox unavailable")
	}
	if err := f.next.Emit(ctx, tx, event); err != nil {
		return err
	}
	if f.afterEmit != nil {
		f.afterEmit(tx, call)
	}
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	client := db.Wrap(conn)
	cartRepo := cart.NewRepository(conn)
	ledger := inventory.NewLedger(conn)
	cartSvc, err := cart.NewService(cartRepo, ledger, client)
	require.NoError(t, err)

	box := &flakyOutbox{next: outbox.NewService(outbox.NewRepository(conn), logger.Nop())}
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry())
	svc, err := NewService(Deps{
		DB:         client,
		Carts:      cartRepo,
		CartViews:  cartSvc,
		Orders:     orders.NewRepository(conn),
		Ledger:     ledger,
		Users:      users.NewRepository(conn),
		Outbox:     box,
		Metrics:    m,
		TaxRateBPS: 1000,
	})
	require.NoError(t, err)
	return &fixture{db: conn, cart: cartSvc, svc: svc, outbox: box, metrics: m}
}

func (f *fixture) buyer(t *testing.T) models.User {
	t.Helper()
	user := models.User{Email: uuid.NewString() + "@example.com", Name: "Buyer"}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) seller(t *testing.T, id string, name string) models.Seller {
	t.Helper()
	seller := models.Seller{ID: uuid.MustParse(id), Name: name}
	require.NoError(t, f.db.Create(&seller).Error)
	return seller
}

func (f *fixture) product(t *testing.T, seller models.Seller, name string, price int64, stock int) models.Product {
	t.Helper()
	p := models.Product{SellerID: seller.ID, Name: name, PriceCents: price, Stock: stock, Visible: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) add(t *testing.T, userID, productID uuid.UUID, qty int) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), userID, productID, qty)
	require.NoError(t, err)
}

func (f *fixture) setStock(t *testing.T, productID uuid.UUID, stock int) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", productID).Update("stock", stock).Error)
}

func (f *fixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, "id = ?", productID).Error)
	return p.Stock
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) totalItems(t *testing.T, userID uuid.UUID) int {
	t.Helper()
	totals, err := f.cart.Totals(context.Background(), userID)
	require.NoError(t, err)
	return totals.TotalItems
}

const (
	sellerA = "10000000-0000-0000-0000-000000000000"
	sellerB = "20000000-0000-0000-0000-000000000000"
)

// twoSellerCart builds sellerA:{X qty 2 @ 1000}, sellerB:{Y qty 1 @ 5000}.
func twoSellerCart(t *testing.T, f *fixture) (models.User, models.Product, models.Product) {
	t.Helper()
	buyer := f.buyer(t)
	x := f.product(t, f.seller(t, sellerA, "Alpha"), "X", 1000, 10)
	y := f.product(t, f.seller(t, sellerB, "Beta"), "Y", 5000, 3)
	f.add(t, buyer.ID, x.ID, 2)
	f.add(t, buyer.ID, y.ID, 1)
	return buyer, x, y
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}

func TestProcessSplitsOrdersBySeller(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)

	res, err := f.svc.Process(context.Background(), Input{
		UserID:          buyer.ID,
		PaymentMethod:   "cod",
		ShippingAddress: " 1 Main St ",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.OrderCount)
	assert.Equal(t, int64(7000), res.TotalAmount)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, uuid.MustParse(sellerA), res.Orders[0].SellerID)
	assert.Equal(t, int64(2000), res.Orders[0].Total)
	assert.Equal(t, 2, res.Orders[0].ItemCount)
	assert.Equal(t, uuid.MustParse(sellerB), res.Orders[1].SellerID)
	assert.Equal(t, int64(5000), res.Orders[1].Total)

	var payments []models.Payment
	require.NoError(t, f.db.Order("amount_cents ASC").Find(&payments).Error)
	require.Len(t, payments, 2)
	assert.Equal(t, int64(2000), payments[0].AmountCents)
	assert.Equal(t, int64(5000), payments[1].AmountCents)
	for _, p := range payments {
		assert.Equal(t, enums.PaymentMethodCOD, p.Method)
		assert.Equal(t, enums.PaymentStatusPending, p.Status)
	}

	var created []models.Order
	require.NoError(t, f.db.Find(&created).Error)
	for _, o := range created {
		assert.Equal(t, enums.OrderStatusPending, o.Status)
		require.NotNil(t, o.ShippingAddress)
		assert.Equal(t, "1 Main St", *o.ShippingAddress)
	}

	assert.Equal(t, 8, f.stock(t, x.ID))
	assert.Equal(t, 2, f.stock(t, y.ID))
	assert.Equal(t, 0, f.totalItems(t, buyer.ID))
	assert.Zero(t, f.count(t, &models.Cart{}))

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", buyer.ID).Error)
	require.NotNil(t, user.Address)
	assert.Equal(t, "1 Main St", *user.Address)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, enums.EventOrderCreated, e.EventType)
	}
}

func TestProcessConservesMoneyAndStock(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)
	z := f.product(t, models.Seller{ID: uuid.MustParse(sellerA)}, "Z", 333, 4)
	f.add(t, buyer.ID, z.ID, 3)

	before := map[uuid.UUID]int{x.ID: f.stock(t, x.ID), y.ID: f.stock(t, y.ID), z.ID: f.stock(t, z.ID)}
	preview, err := f.svc.Summary(context.Background(), buyer.ID)
	require.NoError(t, err)

	res, err := f.svc.Process(context.Background(), Input{UserID: buyer.ID, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)

	var sum int64
	for _, o := range res.Orders {
		sum += o.Total
	}
	assert.Equal(t, res.TotalAmount, sum)
	assert.Equal(t, preview.Summary.Subtotal, res.TotalAmount)

	var items []models.OrderItem
	require.NoError(t, f.db.Find(&items).Error)
	var lineSum int64
	sold := map[uuid.UUID]int{}
	for _, item := range items {
		lineSum += item.LineTotalCents()
		sold[item.ProductID] += item.Quantity
	}
	assert.Equal(t, res.TotalAmount, lineSum)
	for id, was := range before {
		assert.Equal(t, was-sold[id], f.stock(t, id))
	}

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", buyer.ID).Error)
	assert.Nil(t, user.Address, "blank address must not be persisted")
}

func TestProcessInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)
	f.setStock(t, y.ID, 0)

	_, err := f.svc.Process(context.Background(), Input{UserID: buyer.ID, PaymentMethod: "cod"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, y.ID.String(), details["product_id"])
	assert.Equal(t, 0, details["available"])
	assert.Equal(t, 1, details["requested"])

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.Payment{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, 10, f.stock(t, x.ID))
	assert.Equal(t, 3, f.totalItems(t, buyer.ID))
}

func TestProcessRollsBackWrittenOrdersOnLateFailure(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)
	f.outbox.failAt = 2

	_, err := f.svc.Process(context.Background(), Input{
		UserID:          buyer.ID,
		PaymentMethod:   "cod",
		ShippingAddress: "1 Main St",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.count(t, &models.Payment{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, 10, f.stock(t, x.ID))
	assert.Equal(t, 3, f.stock(t, y.ID))
	assert.Equal(t, 3, f.totalItems(t, buyer.ID))

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", buyer.ID).Error)
	assert.Nil(t, user.Address)
}

func TestProcessGuardedDecrementRejectsStockTakenMidCheckout(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)
	// Y passed validation in the snapshot; another buyer takes the last
	// units before sellerB's partition decrements it
	f.outbox.afterEmit = func(tx *gorm.DB, call int) {
		if call == 1 {
			require.NoError(t, tx.Model(&models.Product{}).Where("id = ?", y.ID).Update("stock", 0).Error)
		}
	}

	_, err := f.svc.Process(context.Background(), Input{UserID: buyer.ID, PaymentMethod: "cod"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, y.ID.String(), details["product_id"])
	assert.Equal(t, 0, details["available"])

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.count(t, &models.Payment{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, 10, f.stock(t, x.ID), "sellerA's decrement is rolled back")
	assert.Equal(t, 3, f.totalItems(t, buyer.ID))
}

func TestProcessRollsBackOnPanic(t *testing.T) {
	f := newFixture(t)
	buyer, x, _ := twoSellerCart(t, f)
	f.outbox.afterEmit = func(_ *gorm.DB, call int) {
		if call == 1 {
			panic("emit hook exploded")
		}
	}

	assert.PanicsWithValue(t, "emit hook exploded", func() {
		_, _ = f.svc.Process(context.Background(), Input{UserID: buyer.ID, PaymentMethod: "cod"})
	})

	// the single pooled connection is only free again if the tx was closed
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var orders int64
	require.NoError(t, f.db.WithContext(ctx).Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	assert.Equal(t, 10, f.stock(t, x.ID))
	assert.Equal(t, 3, f.totalItems(t, buyer.ID))
}

func TestProcessRejections(t *testing.T) {
	f := newFixture(t)
	buyer, _, y := twoSellerCart(t, f)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, Input{UserID: buyer.ID, PaymentMethod: "card"})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidPaymentMethod))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.Process(ctx, Input{PaymentMethod: "cod"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	empty := f.buyer(t)
	_, err = f.svc.Process(ctx, Input{UserID: empty.ID, PaymentMethod: "cod"})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonEmptyCart))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = f.svc.Process(ctx, Input{UserID: buyer.ID, PaymentMethod: "cod", SelectedItems: []uuid.UUID{uuid.New()}})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonEmptyCart))

	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", y.ID).Update("visible", false).Error)
	_, err = f.svc.Process(ctx, Input{UserID: buyer.ID, PaymentMethod: "cod"})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonProductUnavailable))

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Equal(t, 3, f.totalItems(t, buyer.ID))
}

func TestProcessSelectedItemsOnly(t *testing.T) {
	f := newFixture(t)
	buyer, x, y := twoSellerCart(t, f)

	res, err := f.svc.Process(context.Background(), Input{
		UserID:        buyer.ID,
		PaymentMethod: "cod",
		SelectedItems: []uuid.UUID{y.ID, uuid.New()},
	})
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, uuid.MustParse(sellerB), res.Orders[0].SellerID)
	assert.Equal(t, int64(5000), res.TotalAmount)

	assert.Equal(t, 10, f.stock(t, x.ID))
	assert.Equal(t, 2, f.stock(t, y.ID))

	groups, err := f.cart.ListItems(buyer.ID).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, x.ID, groups[0].Items[0].ProductID)
	assert.Equal(t, 2, groups[0].Items[0].Quantity)
}

func TestSecondCheckoutForLastUnitFails(t *testing.T) {
	f := newFixture(t)
	seller := f.seller(t, sellerA, "Alpha")
	last := f.product(t, seller, "Last", 1000, 1)
	first, second := f.buyer(t), f.buyer(t)
	f.add(t, first.ID, last.ID, 1)
	f.add(t, second.ID, last.ID, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []models.User{first, second} {
		wg.Add(1)
		go func(i int, userID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Process(context.Background(), Input{UserID: userID, PaymentMethod: "cod"})
		}(i, buyer.ID)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, 0, f.stock(t, last.ID))
}

func TestSummaryAppliesRoundedTax(t *testing.T) {
	f := newFixture(t)
	buyer := f.buyer(t)
	seller := f.seller(t, sellerA, "Alpha")
	p := f.product(t, seller, "Odd", 1005, 5)
	f.add(t, buyer.ID, p.ID, 1)

	preview, err := f.svc.Summary(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Len(t, preview.OrdersBySeller, 1)
	assert.Equal(t, "Alpha", preview.OrdersBySeller[0].SellerName)
	assert.Equal(t, Summary{Subtotal: 1005, Tax: 101, Total: 1106, ItemCount: 1}, preview.Summary)

	empty, err := f.svc.Summary(context.Background(), f.buyer(t).ID)
	require.NoError(t, err)
	assert.Empty(t, empty.OrdersBySeller)
	assert.Equal(t, Summary{}, empty.Summary)
}

func TestTaxCentsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		subtotal int64
		bps      int64
		want     int64
	}{
		{subtotal: 1000, bps: 1000, want: 100},
		{subtotal: 1005, bps: 1000, want: 101},
		{subtotal: 1004, bps: 1000, want: 100},
		{subtotal: 15, bps: 1000, want: 2},
		{subtotal: 0, bps: 1000, want: 0},
		{subtotal: 999, bps: 0, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, taxCents(tc.subtotal, tc.bps), "subtotal %d", tc.subtotal)
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, metrics.OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, metrics.OutcomeError, outcomeOf(errors.New("boom")))
	assert.Equal(t, metrics.OutcomeEmptyCart, outcomeOf(pkgerrors.NewReason(pkgerrors.CodeStateConflict, pkgerrors.ReasonEmptyCart, "cart is empty", nil)))
	assert.Equal(t, metrics.OutcomeValidation, outcomeOf(pkgerrors.New(pkgerrors.CodeValidation, "bad")))
	assert.Equal(t, metrics.OutcomeError, outcomeOf(pkgerrors.New(pkgerrors.CodeDependency, "db down")))
}
