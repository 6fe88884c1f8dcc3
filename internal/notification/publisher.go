// Package notification defines the publish interface to the external
// message transport that delivers OTP codes and password-reset links.
// Delivery itself happens outside this repository; the transport reports
// OTP delivery outcomes back through POST /auth/otp/sms/response.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Message kinds
const (
	KindOTPCode       = "otp_code"
	KindPasswordReset = "password_reset"
)

// Message is a delivery request handed to the external transport.
type Message struct {
	Kind      string
	UserID    uuid.UUID
	Recipient string
	Channel   string
	// OTPID and Code are set for KindOTPCode
	OTPID uuid.UUID
	Code  string
	// Token is set for KindPasswordReset
	Token string
}

// Publisher hands delivery requests to the external message transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
