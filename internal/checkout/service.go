package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/marketplace-checkout/internal/inventory"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/users"
	checkoutpkg "github.com/angelmondragon/marketplace-checkout/pkg/checkout"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/metrics"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/payloads"
)

type txBeginner interface {
	Begin(ctx context.Context) (*gorm.DB, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartLister interface {
	ListItems(userID uuid.UUID) cart.View
}

type recorder interface {
	ObserveCheckout(outcome string, duration time.Duration)
	AddOrders(n int)
}

// Service converts carts into per-seller orders.
type Service interface {
	Process(ctx context.Context, input Input) (*Result, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Preview, error)
}

// Deps wires the checkout service. Metrics and Logger are optional.
type Deps struct {
	DB         txBeginner
	Carts      *cart.Repository
	CartViews  cartLister
	Orders     orders.Repository
	Ledger     *inventory.Ledger
	Users      *users.Repository
	Outbox     outboxPublisher
	Metrics    recorder
	Logger     *logger.Logger
	TaxRateBPS int64
}

type service struct {
	db      txBeginner
	carts   *cart.Repository
	views   cartLister
	orders  orders.Repository
	ledger  *inventory.Ledger
	users   *users.Repository
	outbox  outboxPublisher
	metrics recorder
	logg    *logger.Logger
	taxBPS  int64
}

// NewService validates the dependencies and builds the checkout service.
func NewService(deps Deps) (Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("transaction starter required")
	}
	if deps.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if deps.CartViews == nil {
		return nil, fmt.Errorf("cart view source required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.TaxRateBPS < 0 {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	m := deps.Metrics
	if m == nil {
		m = (*metrics.CheckoutMetrics)(nil)
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:      deps.DB,
		carts:   deps.Carts,
		views:   deps.CartViews,
		orders:  deps.Orders,
		ledger:  deps.Ledger,
		users:   deps.Users,
		outbox:  deps.Outbox,
		metrics: m,
		logg:    logg,
		taxBPS:  deps.TaxRateBPS,
	}, nil
}

// Process runs the whole checkout in one transaction. Every step either
// hands its result to the next one or the transaction is rolled back and
// nothing the checkout wrote survives.
func (s *service) Process(ctx context.Context, input Input) (*Result, error) {
	started := time.Now()
	result, err := s.process(ctx, input)
	s.metrics.ObserveCheckout(outcomeOf(err), time.Since(started))
	if err != nil {
		return nil, err
	}
	s.metrics.AddOrders(result.OrderCount)
	return result, nil
}

func (s *service) process(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	method, err := checkoutpkg.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	selection := checkoutpkg.NormalizeSelection(input.SelectedItems)
	address := checkoutpkg.NormalizeAddress(input.ShippingAddress)

	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "begin checkout")
	}
	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback().Error; err != nil {
				s.logg.Error(ctx, "checkout rollback after panic failed", err)
			}
			panic(p)
		}
	}()

	lines, err := s.snapshot(ctx, tx, input.UserID, selection)
	if err != nil {
		return nil, s.rollback(ctx, tx, "snapshot", err)
	}

	partitions, err := plan(lines)
	if err != nil {
		return nil, s.rollback(ctx, tx, "validate", err)
	}

	result := &Result{Orders: make([]OrderSummary, 0, len(partitions))}
	for _, partition := range partitions {
		placed, err := s.placeOrder(ctx, tx, input.UserID, method, address, partition)
		if err != nil {
			return nil, s.rollback(ctx, tx, "place order", err)
		}
		result.Orders = append(result.Orders, placed)
		result.TotalAmount += placed.Total
	}
	result.OrderCount = len(result.Orders)

	if err := s.consumeCart(ctx, tx, input.UserID, lines); err != nil {
		return nil, s.rollback(ctx, tx, "consume cart", err)
	}
	if err := s.saveAddress(ctx, tx, input.UserID, address); err != nil {
		return nil, s.rollback(ctx, tx, "save address", err)
	}

	if err := tx.Commit().Error; err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit checkout")
		s.logg.Error(s.logg.WithField(ctx, "step", "commit"), "checkout failed", wrapped)
		return nil, wrapped
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_count":  result.OrderCount,
		"total_amount": result.TotalAmount,
	}), "checkout committed")
	return result, nil
}

func (s *service) snapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID, selection []uuid.UUID) ([]cart.Line, error) {
	lines, err := s.carts.WithTx(tx).Snapshot(ctx, userID, selection)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart snapshot")
	}
	if len(lines) == 0 {
		return nil, checkoutpkg.EmptyCart()
	}
	return lines, nil
}

func plan(lines []cart.Line) ([]helpers.SellerPartition, error) {
	if err := helpers.ValidateLines(lines); err != nil {
		return nil, err
	}
	return helpers.PartitionBySeller(lines), nil
}

// placeOrder writes one seller's order with its items and payment, takes the
// stock and queues the order_created event, all on tx.
func (s *service) placeOrder(
	ctx context.Context,
	tx *gorm.DB,
	userID uuid.UUID,
	method enums.PaymentMethod,
	address string,
	partition helpers.SellerPartition,
) (OrderSummary, error) {
	repo := s.orders.WithTx(tx)
	ledger := s.ledger.WithTx(tx)

	order := models.Order{
		UserID:     userID,
		SellerID:   partition.SellerID,
		Status:     enums.OrderStatusPending,
		TotalCents: partition.TotalCents,
		ItemCount:  partition.ItemCount,
	}
	if address != "" {
		order.ShippingAddress = &address
	}
	if err := repo.CreateOrder(ctx, &order); err != nil {
		return OrderSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	items := make([]models.OrderItem, 0, len(partition.Lines))
	eventItems := make([]payloads.OrderCreatedItem, 0, len(partition.Lines))
	for _, line := range partition.Lines {
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			PriceCents:  line.PriceCents,
		})
		eventItems = append(eventItems, payloads.OrderCreatedItem{
			ProductID:  line.ProductID,
			Name:       line.ProductName,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return OrderSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
	}

	for _, line := range partition.Lines {
		if err := ledger.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
			return OrderSummary{}, err
		}
	}

	payment := models.Payment{
		OrderID:     order.ID,
		Method:      method,
		AmountCents: order.TotalCents,
		Status:      enums.PaymentStatusPending,
	}
	if err := repo.CreatePayment(ctx, &payment); err != nil {
		return OrderSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: userID, Role: enums.UserRoleBuyer.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        userID,
			SellerID:      order.SellerID,
			TotalCents:    order.TotalCents,
			ItemCount:     order.ItemCount,
			PaymentMethod: method,
			Items:         eventItems,
			OrderDate:     order.OrderDate,
		},
	})
	if err != nil {
		return OrderSummary{}, err
	}

	return OrderSummary{
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		Total:     order.TotalCents,
		ItemCount: order.ItemCount,
	}, nil
}

func (s *service) consumeCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []cart.Line) error {
	if err := s.carts.WithTx(tx).DeleteItems(ctx, userID, helpers.ProductIDs(lines)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove purchased cart items")
	}
	return nil
}

func (s *service) saveAddress(ctx context.Context, tx *gorm.DB, userID uuid.UUID, address string) error {
	if address == "" {
		return nil
	}
	return s.users.WithTx(tx).UpdateProfile(ctx, userID, users.ProfilePatch{Address: &address})
}

// rollback aborts tx after a failed step and returns the step's error,
// joined with the rollback failure if there was one.
func (s *service) rollback(ctx context.Context, tx *gorm.DB, step string, cause error) error {
	cause = normalize(cause, step)
	ctx = s.logg.WithField(ctx, "step", step)

	if err := tx.Rollback().Error; err != nil {
		s.logg.Error(ctx, "checkout rollback failed", err)
		cause = multierr.Append(cause, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback checkout"))
	}

	switch pkgerrors.CodeOf(cause) {
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		s.logg.Error(ctx, "checkout failed", cause)
	default:
		s.logg.Warn(s.logg.WithField(ctx, "reason", string(pkgerrors.As(cause).Reason())), "checkout rejected")
	}
	return cause
}

// Summary previews a checkout of the whole cart. It takes no locks and
// writes nothing.
func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Preview, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	groups, err := s.views.ListItems(userID).Collect(ctx)
	if err != nil {
		return nil, normalize(err, "load checkout summary")
	}
	return &Preview{
		OrdersBySeller: groups,
		Summary:        summarize(groups, s.taxBPS),
	}, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch typed.Reason() {
	case pkgerrors.ReasonEmptyCart:
		return metrics.OutcomeEmptyCart
	case pkgerrors.ReasonInsufficientStock:
		return metrics.OutcomeInsufficientStock
	case pkgerrors.ReasonProductUnavailable:
		return metrics.OutcomeProductUnavailable
	case pkgerrors.ReasonInvalidPaymentMethod:
		return metrics.OutcomeInvalidPaymentMethod
	}
	if typed.Code() == pkgerrors.CodeValidation {
		return metrics.OutcomeValidation
	}
	return metrics.OutcomeError
}

func normalize(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
