package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/inventory"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-checkout/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the authenticated caller as far as order access is concerned.
// SellerID is set only for seller accounts.
type Actor struct {
	UserID   uuid.UUID
	SellerID *uuid.UUID
	Role     enums.UserRole
}

func (a Actor) isAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

func (a Actor) ownsSeller(sellerID uuid.UUID) bool {
	return a.Role == enums.UserRoleSeller && a.SellerID != nil && *a.SellerID == sellerID
}

// StatusInput moves an order through its lifecycle.
type StatusInput struct {
	OrderID uuid.UUID
	Patch   OrderPatch
	Actor   Actor
}

// PaymentInput moves an order's payment record.
type PaymentInput struct {
	OrderID uuid.UUID
	Patch   PaymentPatch
	Actor   Actor
}

// Service exposes order reads with access control and the status
// transitions.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListForSeller(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error)
	Detail(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*OrderDetail, error)
	UpdatePaymentStatus(ctx context.Context, input PaymentInput) (*OrderDetail, error)
}

type service struct {
	repo   Repository
	ledger *inventory.Ledger
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, ledger *inventory.Ledger, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, ledger: ledger, tx: tx, outbox: outbox}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListForUser(ctx, userID, params, filters)
	if err != nil {
		return nil, listError(err, "list user orders")
	}
	return list, nil
}

func (s *service) ListForSeller(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if actor.SellerID == nil || *actor.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller context missing")
	}
	list, err := s.repo.ListForSeller(ctx, *actor.SellerID, params, filters)
	if err != nil {
		return nil, listError(err, "list seller orders")
	}
	return list, nil
}

func (s *service) Detail(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	detail, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, OrderNotFound(orderID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order detail")
	}
	// other people's orders look the same as missing ones
	if detail.UserID != actor.UserID && !actor.ownsSeller(detail.SellerID) && !actor.isAdmin() {
		return nil, OrderNotFound(orderID)
	}
	return detail, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*OrderDetail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := input.Patch.Validate(); err != nil {
		return nil, err
	}
	target := *input.Patch.Status

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadForSeller(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		if order.Status == target {
			return nil
		}
		if !order.Status.CanTransition(target) {
			return InvalidTransition("order", order.Status.String(), target.String())
		}

		if err := repo.ApplyOrderPatch(ctx, order.ID, order.Status, input.Patch); err != nil {
			return patchError(err, "order", order.Status.String(), target.String())
		}

		restocked := false
		if target == enums.OrderStatusCancelled {
			items, err := repo.FindItems(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
			}
			ledger := s.ledger.WithTx(tx)
			for _, item := range items {
				if err := ledger.Restock(ctx, item.ProductID, item.Quantity); err != nil {
					// the catalog may have deleted the product since
					if pkgerrors.HasReason(err, pkgerrors.ReasonProductNotFound) {
						continue
					}
					return err
				}
				restocked = true
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				SellerID:   order.SellerID,
				FromStatus: order.Status,
				ToStatus:   target,
				Restocked:  restocked,
			},
		})
	})
	if err != nil {
		return nil, normalize(err, "update order status")
	}
	return s.Detail(ctx, input.OrderID, input.Actor)
}

func (s *service) UpdatePaymentStatus(ctx context.Context, input PaymentInput) (*OrderDetail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := input.Patch.Validate(); err != nil {
		return nil, err
	}
	target := *input.Patch.Status

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadForSeller(ctx, repo, input.OrderID, input.Actor)
		if err != nil {
			return err
		}
		payment, err := repo.FindPayment(ctx, order.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment.Status == target {
			return nil
		}
		if !payment.Status.CanTransition(target) {
			return InvalidTransition("payment", payment.Status.String(), target.String())
		}
		if err := repo.ApplyPaymentPatch(ctx, order.ID, payment.Status, input.Patch); err != nil {
			return patchError(err, "payment", payment.Status.String(), target.String())
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actorRef(input.Actor),
			Data: payloads.PaymentStatusChangedEvent{
				OrderID:    order.ID,
				PaymentID:  payment.ID,
				FromStatus: payment.Status,
				ToStatus:   target,
			},
		})
	})
	if err != nil {
		return nil, normalize(err, "update payment status")
	}
	return s.Detail(ctx, input.OrderID, input.Actor)
}

func (s *service) loadForSeller(ctx context.Context, repo Repository, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, OrderNotFound(orderID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.ownsSeller(order.SellerID) && !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	return order, nil
}

func patchError(err error, kind, from, to string) error {
	if errors.Is(err, ErrStatusChanged) {
		return StatusChanged(kind, from, to)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update "+kind+" status")
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}

func listError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func normalize(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
