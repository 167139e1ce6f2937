package domain

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not on the
	// whitelist of legal edges. The order is left untouched.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrInvalidWebhookSignature is returned when a gateway callback's hash
	// does not match. No state change may follow it.
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	ErrOrderNotFound = errors.New("order not found")

	// ErrMissingPaymentProof is returned when manual verification is
	// attempted on an order with no stored proof-of-payment reference.
	ErrMissingPaymentProof = errors.New("payment proof required before manual verification")

	// ErrManualVerifyNotAllowed is returned when the order's payment method
	// is settled by the gateway, not by admin review.
	ErrManualVerifyNotAllowed = errors.New("payment method does not support manual verification")
)
