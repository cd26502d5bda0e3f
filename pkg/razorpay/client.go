package razorpay

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Config holds Razorpay API credentials.
type Config struct {
	KeyID     string
	KeySecret string
}

// Client wraps the official Razorpay SDK with the narrow surface the payment
// service needs.
type Client struct {
	api       *razorpay.Client
	keySecret string
}

// NewClient creates a new gateway client.
func NewClient(cfg Config) *Client {
	return &Client{
		api:       razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		keySecret: cfg.KeySecret,
	}
}

// CreateOrder creates a payment order at the gateway and returns the remote
// order id. The amount is in the currency's minor units (paise for INR).
func (c *Client) CreateOrder(amountMinorUnits int64, currency, receipt string) (string, error) {
	order, err := c.api.Order.Create(map[string]interface{}{
		"amount":   amountMinorUnits,
		"currency": currency,
		"receipt":  receipt,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("gateway order creation failed: %w", err)
	}
	id, ok := order["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("gateway order response carries no id")
	}
	return id, nil
}

// VerifySignature checks a payment confirmation signature against this
// client's key secret.
func (c *Client) VerifySignature(remoteOrderID, remotePaymentID, signature string) bool {
	return VerifySignature(c.keySecret, remoteOrderID, remotePaymentID, signature)
}
