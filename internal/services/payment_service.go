package services

import (
	"errors"
	"fmt"
	"log"
	"math"

	"storefront/internal/models"
	"storefront/internal/notifications"
	"storefront/internal/repositories"
	"storefront/pkg/rabbitmq"
)

// PaymentGateway is the payment processor boundary.
type PaymentGateway interface {
	// CreateOrder creates a remote payment order for the given amount in the
	// currency's minor units and returns the remote order id.
	CreateOrder(amountMinorUnits int64, currency, receipt string) (string, error)
	// VerifySignature checks a payment confirmation signature.
	VerifySignature(remoteOrderID, remotePaymentID, signature string) bool
}

const paymentCurrency = "INR"

// PaymentService reconciles orders with the payment gateway.
type PaymentService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	userRepo    repositories.UserRepository
	gateway     PaymentGateway
	notifier    notifications.Notifier
	events      EventPublisher
}

// NewPaymentService creates a new PaymentService. notifier and events may be
// nil; the corresponding side effects are skipped.
func NewPaymentService(
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	userRepo repositories.UserRepository,
	gateway PaymentGateway,
	notifier notifications.Notifier,
	events EventPublisher,
) *PaymentService {
	return &PaymentService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		gateway:     gateway,
		notifier:    notifier,
		events:      events,
	}
}

// CreateGatewayOrder opens a payment intent at the gateway for an online
// order and stores the remote order reference. The order stays pending.
func (s *PaymentService) CreateGatewayOrder(orderID, userID string) (*models.Order, error) {
	order, err := s.loadOwnedOrder(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentMethodOnline {
		return nil, ErrWrongPaymentMethod
	}
	if order.PaymentStatus == models.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if order.IsCancelled {
		return nil, ErrAlreadyCancelled
	}

	amount := int64(math.Round(order.TotalAmount * 100))
	remoteOrderID, err := s.gateway.CreateOrder(amount, paymentCurrency, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order for %s: %w", orderID, err)
	}

	order.RazorpayOrderID = remoteOrderID
	if err := s.orderRepo.Save(order); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference on order %s: %w", orderID, err)
	}
	return order, nil
}

// VerifyPayment settles an online payment. A valid signature marks the order
// paid; an invalid one cancels the order and restores its stock, the same
// compensation a user cancellation performs. Both paths are idempotent: once
// the payment has left pending, no replay can re-run the restock or flip a
// cancelled order to paid.
func (s *PaymentService) VerifyPayment(orderID, userID, remoteOrderID, remotePaymentID, signature string) (*models.Order, error) {
	order, err := s.loadOwnedOrder(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.RazorpayOrderID == "" || order.RazorpayOrderID != remoteOrderID {
		return nil, ErrOrderMismatch
	}

	valid := s.gateway.VerifySignature(remoteOrderID, remotePaymentID, signature)

	// The status gates below are read-then-save: two verifies racing on the
	// same order can both observe pending. Replays after either commits take
	// the terminal branches.
	switch {
	case valid && order.PaymentStatus == models.PaymentPaid:
		// Replayed confirmation of an already settled payment.
		return order, nil

	case valid && order.PaymentStatus == models.PaymentPending && !order.IsCancelled:
		order.PaymentStatus = models.PaymentPaid
		order.RazorpayPaymentID = remotePaymentID
		order.RazorpaySignature = signature
		if err := s.orderRepo.Save(order); err != nil {
			return nil, fmt.Errorf("failed to record payment on order %s: %w", orderID, err)
		}
		s.publishEvent("payment.confirmed", order)
		s.notifyAsync(order.UserID, "Payment received",
			fmt.Sprintf("Payment for order %s (%.2f) was successful.", order.ID, order.TotalAmount))
		return order, nil

	case valid:
		// Valid signature arriving after the order was already cancelled
		// (e.g. after a failed verification). The cancellation stands.
		return nil, ErrAlreadyCancelled

	case order.PaymentStatus == models.PaymentPending && !order.IsCancelled:
		order.PaymentStatus = models.PaymentFailed
		order.OrderStatus = models.OrderCancelled
		order.IsCancelled = true
		order.CancelReason = "Payment verification failed"
		if err := s.orderRepo.Save(order); err != nil {
			return nil, fmt.Errorf("failed to record payment failure on order %s: %w", orderID, err)
		}
		s.restockItems(order)
		s.publishEvent("payment.failed", order)
		s.notifyAsync(order.UserID, "Order cancelled",
			fmt.Sprintf("Payment for order %s could not be verified; the order was cancelled.", order.ID))
		return nil, ErrInvalidSignature

	default:
		// Invalid signature against an already settled order. No state
		// change and, critically, no second restock.
		return nil, ErrInvalidSignature
	}
}

func (s *PaymentService) loadOwnedOrder(orderID, userID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return order, nil
}

func (s *PaymentService) restockItems(order *models.Order) {
	for _, item := range order.Items {
		if err := s.productRepo.IncrementStock(item.ProductID, item.Quantity); err != nil {
			log.Printf("CRITICAL: restock failed for order %s, product %s (+%d): %v",
				order.ID, item.ProductID, item.Quantity, err)
		}
	}
}

func (s *PaymentService) publishEvent(event string, order *models.Order) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"event":          event,
		"order_id":       order.ID,
		"user_id":        order.UserID,
		"payment_status": order.PaymentStatus,
		"total":          order.TotalAmount,
	}
	if err := s.events.PublishJSON(rabbitmq.OrderEventsQueue, payload); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", event, order.ID, err)
	}
}

func (s *PaymentService) notifyAsync(userID, subject, body string) {
	if s.notifier == nil || s.userRepo == nil {
		return
	}
	go func() {
		user, err := s.userRepo.GetByID(userID)
		if err != nil {
			log.Printf("Notification skipped, cannot resolve user %s: %v", userID, err)
			return
		}
		if err := s.notifier.Send(user.Email, subject, body); err != nil {
			log.Printf("Notification to %s failed: %v", user.Email, err)
		}
	}()
}
