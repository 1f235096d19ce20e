package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/stretchr/testify/assert"
)

type stubService struct {
	booking.BookingUseCase
	err error
}

func (s stubService) ApplyPaymentEvent(context.Context, kafka.PaymentEvent) error {
	return s.err
}

func TestPaymentHandler(t *testing.T) {
	event := kafka.PaymentEvent{Type: kafka.EventPaymentConfirmed, BookingID: "booking_7_1"}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"applied", nil, false},
		{"unknown booking is skipped", fmt.Errorf("%w: no payment", domain.ErrNotFound), false},
		{"malformed event is skipped", fmt.Errorf("%w: unknown type", domain.ErrValidation), false},
		{"store failure stops consumption", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := paymentHandler(stubService{err: tt.err}, slog.Default())
			err := handle(context.Background(), event)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
