package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	err := bus.Publish(context.Background(), Message{Kind: KindOTPCode})
	if err != nil {
		t.Errorf("publishing without subscribers must not fail, got %v", err)
	}
}

func TestPublish_FanOut(t *testing.T) {
	bus := NewInMemoryBus()

	var first, second []Message
	bus.Subscribe(KindOTPCode, func(msg Message) { first = append(first, msg) })
	bus.Subscribe(KindOTPCode, func(msg Message) { second = append(second, msg) })
	bus.Subscribe(KindPasswordReset, func(msg Message) {
		t.Error("password_reset subscriber must not see otp_code messages")
	})

	msg := Message{
		Kind:      KindOTPCode,
		UserID:    uuid.New(),
		Recipient: "+15550001111",
		Channel:   "sms",
		OTPID:     uuid.New(),
		Code:      "123456",
	}
	if err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to receive the message, got %d and %d", len(first), len(second))
	}
	if first[0].OTPID != msg.OTPID || first[0].Code != msg.Code {
		t.Errorf("message mangled in delivery: %+v", first[0])
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()

	received := 0
	unsubscribe := bus.Subscribe(KindPasswordReset, func(msg Message) { received++ })

	bus.Publish(context.Background(), Message{Kind: KindPasswordReset})
	unsubscribe()
	bus.Publish(context.Background(), Message{Kind: KindPasswordReset})

	if received != 1 {
		t.Errorf("expected exactly one delivery before unsubscribe, got %d", received)
	}
	if bus.SubscriberCount(KindPasswordReset) != 0 {
		t.Errorf("expected no subscribers left, got %d", bus.SubscriberCount(KindPasswordReset))
	}
}
