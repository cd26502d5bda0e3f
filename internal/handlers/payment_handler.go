package handlers

import (
	"log"

	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles HTTP requests for payment settlement.
type PaymentHandler struct {
	service  *services.PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the payment routes with the Fiber app.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/order", h.HandleCreateGatewayOrder)
	paymentRoutes.Post("/verify", h.HandleVerifyPayment)
}

// CreateGatewayOrderRequest is the request body for opening a payment intent.
type CreateGatewayOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// HandleCreateGatewayOrder opens a gateway payment order for an online order.
func (h *PaymentHandler) HandleCreateGatewayOrder(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req CreateGatewayOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	order, err := h.service.CreateGatewayOrder(req.OrderID, userID)
	if err != nil {
		log.Printf("Error creating gateway order for %s: %v", req.OrderID, err)
		return serviceError(c, err, "Could not create payment order")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":          order.ID,
		"razorpay_order_id": order.RazorpayOrderID,
		"amount":            order.TotalAmount,
	})
}

// VerifyPaymentRequest is the request body for the gateway callback.
type VerifyPaymentRequest struct {
	OrderID           string `json:"order_id" validate:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// HandleVerifyPayment verifies a signed payment confirmation.
func (h *PaymentHandler) HandleVerifyPayment(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	order, err := h.service.VerifyPayment(req.OrderID, userID, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)
	if err != nil {
		log.Printf("Payment verification failed for order %s: %v", req.OrderID, err)
		return serviceError(c, err, "Payment verification failed")
	}

	return c.JSON(fiber.Map{
		"message": "Payment verified",
		"order":   order,
	})
}
