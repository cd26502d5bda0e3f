package handlers

import (
	"errors"
	"fmt"
	"log"

	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the order routes with the Fiber app. Fulfilment
// status updates are store-operator territory and sit behind adminOnly.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, adminOnly fiber.Handler) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetMyOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandlePlaceOrder)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Patch("/:id/status", adminOnly, h.HandleUpdateOrderStatus)
}

// PlaceOrderRequest is the request body for placing an order.
type PlaceOrderRequest struct {
	Items           []services.OrderLine   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof=cod online"`
}

// HandlePlaceOrder places a new order for the authenticated user.
func (h *OrderHandler) HandlePlaceOrder(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication required",
		})
	}

	var req PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing place-order request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	order, err := h.service.PlaceOrder(userID, req.Items, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		log.Printf("Error placing order for user %s: %v", userID, err)
		var stockErr *services.InsufficientStockError
		if errors.As(err, &stockErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": "This item is no longer available in that quantity",
				"product": stockErr.ProductID,
				"error":   err.Error(),
			})
		}
		return serviceError(c, err, "Could not place order")
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetMyOrders retrieves the authenticated user's orders.
func (h *OrderHandler) HandleGetMyOrders(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	orders, err := h.service.GetOrdersByUser(userID)
	if err != nil {
		log.Printf("Error getting orders for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order owned by the authenticated user.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	orderID := c.Params("id")

	order, err := h.service.GetOrderByID(orderID, userID)
	if err != nil {
		log.Printf("Error getting order %s: %v", orderID, err)
		return serviceError(c, err, "Could not retrieve order")
	}
	return c.JSON(order)
}

// CancelOrderRequest is the request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// HandleCancelOrder cancels an order and restores its stock.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	orderID := c.Params("id")

	var req CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	order, err := h.service.CancelOrder(orderID, userID, req.Reason)
	if err != nil {
		log.Printf("Error cancelling order %s: %v", orderID, err)
		return serviceError(c, err, "Could not cancel order")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Order %s cancelled", order.ID),
		"order":   order,
	})
}

// UpdateOrderStatusRequest is the request body for status updates.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=shipped delivered"`
}

// HandleUpdateOrderStatus applies a forward fulfilment transition.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")

	var req UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	order, err := h.service.UpdateOrderStatus(orderID, req.Status)
	if err != nil {
		log.Printf("Error updating status of order %s: %v", orderID, err)
		return serviceError(c, err, "Could not update order status")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Order %s status updated to %s", order.ID, order.OrderStatus),
		"order":   order,
	})
}
