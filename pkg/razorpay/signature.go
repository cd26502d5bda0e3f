package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex digest Razorpay attaches to payment confirmations:
// HMAC-SHA256 over "<orderID>|<paymentID>" keyed by the API secret.
func Sign(secret, remoteOrderID, remotePaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(remoteOrderID + "|" + remotePaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the supplied signature matches the expected
// digest. The comparison is constant-time.
func VerifySignature(secret, remoteOrderID, remotePaymentID, signature string) bool {
	expected := Sign(secret, remoteOrderID, remotePaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
