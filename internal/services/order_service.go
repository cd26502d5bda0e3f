package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/notifications"
	"storefront/internal/repositories"
	"storefront/pkg/rabbitmq"

	"github.com/google/uuid"
)

// OrderLine is one (product, quantity) pair in a placement request. It is
// untrusted input: prices come from the live catalog, never from the caller.
type OrderLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// EventPublisher publishes order lifecycle events to the message bus.
// A nil publisher is tolerated; events are then skipped.
type EventPublisher interface {
	PublishJSON(queue string, payload interface{}) error
}

// PlacementGuard rejects duplicate in-flight placement requests.
type PlacementGuard interface {
	Acquire(key string) (bool, error)
	Release(key string)
}

// OrderService handles order placement, cancellation and fulfilment status.
type OrderService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	userRepo    repositories.UserRepository
	notifier    notifications.Notifier
	events      EventPublisher
	guard       PlacementGuard
}

// NewOrderService creates a new OrderService. notifier, events and guard may
// be nil; the corresponding side effects are skipped.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	userRepo repositories.UserRepository,
	notifier notifications.Notifier,
	events EventPublisher,
	guard PlacementGuard,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		events:      events,
		guard:       guard,
	}
}

// PlaceOrder validates the requested lines against the live catalog, reserves
// stock for each line with a conditional decrement, snapshots unit prices and
// records the order. It either commits everything or leaves no trace: any
// failure after the first decrement unwinds the decrements already applied
// (in reverse order) before the error is returned.
//
// Lines are processed in caller order. Two concurrent multi-line orders that
// name overlapping products in opposite orders may serialize unpredictably;
// the unwind makes that safe, but it is a known fairness limitation.
func (s *OrderService) PlaceOrder(userID string, lines []OrderLine, address models.ShippingAddress, paymentMethod string) (*models.Order, error) {
	if userID == "" || len(lines) == 0 {
		return nil, ErrInvalidInput
	}
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, ErrInvalidInput
		}
	}
	if paymentMethod != models.PaymentMethodCOD && paymentMethod != models.PaymentMethodOnline {
		return nil, ErrInvalidInput
	}

	if s.guard != nil {
		lockKey := "checkout:lock:user:" + userID
		locked, err := s.guard.Acquire(lockKey)
		if err != nil {
			// Guard trouble must not block checkout; proceed without it.
			log.Printf("Placement guard unavailable for user %s: %v", userID, err)
		} else if !locked {
			return nil, ErrDuplicateRequest
		} else {
			defer s.guard.Release(lockKey)
		}
	}

	// Resolve every referenced product before touching any stock.
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.productRepo.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	}
	known := make(map[string]struct{}, len(products))
	for _, p := range products {
		known[p.ID] = struct{}{}
	}
	for _, line := range lines {
		if _, ok := known[line.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
	}

	// Reserve stock line by line in caller order. On any failure, undo the
	// decrements already applied, newest first.
	type decrement struct {
		productID string
		quantity  int
	}
	var applied []decrement
	unwind := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			d := applied[i]
			if err := s.productRepo.IncrementStock(d.productID, d.quantity); err != nil {
				log.Printf("CRITICAL: failed to restore stock for product %s (+%d) during unwind: %v", d.productID, d.quantity, err)
			}
		}
	}

	items := make([]models.OrderItem, 0, len(lines))
	var subtotal, totalAmount float64
	for _, line := range lines {
		product, err := s.productRepo.DecrementStockIfAvailable(line.ProductID, line.Quantity)
		if err != nil {
			unwind()
			switch {
			case errors.Is(err, repositories.ErrStockConflict):
				return nil, &InsufficientStockError{ProductID: line.ProductID}
			case errors.Is(err, repositories.ErrNotFound):
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			default:
				return nil, fmt.Errorf("%w: %v", ErrTransactionAborted, err)
			}
		}
		applied = append(applied, decrement{productID: line.ProductID, quantity: line.Quantity})

		effective := product.EffectivePrice()
		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			Price:          product.Price,
			EffectivePrice: effective,
		})
		subtotal += product.Price * float64(line.Quantity)
		totalAmount += effective * float64(line.Quantity)
	}

	newOrder := &models.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		Subtotal:        subtotal,
		TotalAmount:     totalAmount,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.OrderPlaced,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.orderRepo.Create(newOrder); err != nil {
		unwind()
		return nil, fmt.Errorf("%w: %v", ErrTransactionAborted, err)
	}

	s.publishEvent("order.created", newOrder)
	s.notifyAsync(userID, "Order confirmed",
		fmt.Sprintf("Your order %s (total %.2f) has been placed.", newOrder.ID, newOrder.TotalAmount))

	return newOrder, nil
}

// CancelOrder transitions a cancellable order to cancelled and restores the
// stock its lines reserved. The status change is authoritative; restock runs
// after it and is best-effort (failures are logged per line, never reverse
// the cancellation).
func (s *OrderService) CancelOrder(orderID, userID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrInvalidInput
	}

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
	// Read-then-save: a cancel racing a failed payment verification can both
	// observe a cancellable order. Replays after either commits hit these
	// guards.
	if order.OrderStatus == models.OrderCancelled {
		return nil, ErrAlreadyCancelled
	}
	if order.OrderStatus == models.OrderDelivered {
		return nil, ErrCannotCancelDelivered
	}

	order.OrderStatus = models.OrderCancelled
	order.IsCancelled = true
	order.CancelReason = reason
	if err := s.orderRepo.Save(order); err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	s.RestockItems(order)
	s.publishEvent("order.cancelled", order)
	s.notifyAsync(userID, "Order cancelled",
		fmt.Sprintf("Your order %s has been cancelled: %s", order.ID, reason))

	return order, nil
}

// RestockItems reverses the stock decrements of every line on the order. A
// failing line is logged as a data-integrity error and the remaining lines
// are still attempted.
func (s *OrderService) RestockItems(order *models.Order) {
	for _, item := range order.Items {
		if err := s.productRepo.IncrementStock(item.ProductID, item.Quantity); err != nil {
			log.Printf("CRITICAL: restock failed for order %s, product %s (+%d): %v",
				order.ID, item.ProductID, item.Quantity, err)
		}
	}
}

// UpdateOrderStatus applies the admin-driven forward transitions
// placed -> shipped -> delivered. Cancellation has its own path and
// delivered is terminal.
func (s *OrderService) UpdateOrderStatus(orderID, status string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	allowed := map[string]string{
		models.OrderPlaced:  models.OrderShipped,
		models.OrderShipped: models.OrderDelivered,
	}
	if next, ok := allowed[order.OrderStatus]; !ok || next != status {
		return nil, ErrInvalidStatus
	}

	order.OrderStatus = status
	if status == models.OrderDelivered {
		order.IsDelivered = true
	}
	if err := s.orderRepo.Save(order); err != nil {
		return nil, fmt.Errorf("failed to update status of order %s: %w", orderID, err)
	}

	s.publishEvent("order."+status, order)
	return order, nil
}

// GetOrderByID retrieves an order, enforcing ownership.
func (s *OrderService) GetOrderByID(orderID, userID string) (*models.Order, error) {
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

// GetOrdersByUser retrieves all orders belonging to a user.
func (s *OrderService) GetOrdersByUser(userID string) ([]models.Order, error) {
	return s.orderRepo.GetByUserID(userID)
}

// publishEvent emits an order lifecycle event. Failures are logged, never
// propagated: the event bus has no bearing on order correctness.
func (s *OrderService) publishEvent(event string, order *models.Order) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"event":    event,
		"order_id": order.ID,
		"user_id":  order.UserID,
		"status":   order.OrderStatus,
		"total":    order.TotalAmount,
	}
	if err := s.events.PublishJSON(rabbitmq.OrderEventsQueue, payload); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", event, order.ID, err)
	}
}

// notifyAsync looks up the user's contact address and dispatches the
// notification off the request path. Failures are logged and dropped.
func (s *OrderService) notifyAsync(userID, subject, body string) {
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
