package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) ProcessTripBooking(ctx context.Context, input booking.SubmitInput) (*domain.SubmissionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubmissionResult), args.Error(1)
}

func (m *MockBookingUseCase) GetBookingStatus(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error) {
	args := m.Called(ctx, bookingID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingAggregate), args.Error(1)
}

func (m *MockBookingUseCase) GetUserBookings(ctx context.Context, userID string, limit, offset int) (*domain.BookingPage, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingPage), args.Error(1)
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, bookingID, userID string) (*domain.BookingAggregate, error) {
	args := m.Called(ctx, bookingID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingAggregate), args.Error(1)
}

func (m *MockBookingUseCase) RequestRefund(ctx context.Context, input booking.RefundInput) (*domain.RefundRequest, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefundRequest), args.Error(1)
}

func (m *MockBookingUseCase) ApplyPaymentEvent(ctx context.Context, event kafka.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBookingUseCase) ReapStaleComponents(ctx context.Context) ([]domain.ComponentBooking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.ComponentBooking), args.Error(1)
}

func newTestRouter(service booking.BookingUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewBookingHandler(service).Register(router.Group("/api/bookings"))
	return router
}

func perform(router *gin.Engine, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBookingHandler_submit(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	completed := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	result := &domain.SubmissionResult{
		BookingID:      "booking_7_1777890600000",
		TripID:         7,
		Status:         domain.BookingStatusPartial,
		TotalCostCents: 35000,
		ComponentCount: 2,
		CompletedAt:    completed,
		Confirmed: []domain.ComponentResult{{
			ComponentType:      domain.ComponentFlight,
			Provider:           "amadeus",
			PriceCents:         35000,
			Status:             domain.ComponentStatusConfirmed,
			ConfirmationNumber: "A1B2C3D4E5",
		}},
		Failed: []domain.ComponentResult{{
			ComponentType: domain.ComponentHotel,
			Provider:      "expedia",
			PriceCents:    18000,
			Status:        domain.ComponentStatusFailed,
			Err:           errors.New("no rooms left"),
		}},
	}

	mockService.On("ProcessTripBooking", mock.Anything, mock.MatchedBy(func(in booking.SubmitInput) bool {
		return in.UserID == "user-1" &&
			in.TripID == 7 &&
			len(in.Selections) == 2 &&
			in.Selections[0].PriceCents == 35000 &&
			in.Selections[1].PriceCents == 18000 &&
			in.Selections[1].ComponentType == domain.ComponentHotel
	})).Return(result, nil).Once()

	w := perform(router, http.MethodPost, "/api/bookings", "user-1", gin.H{
		"trip_id": 7,
		"selections": []gin.H{
			{"component_type": "flight", "selected_option": gin.H{"id": "f-1", "provider": "amadeus", "price": 350.00}},
			{"component_type": "hotel", "selected_option": gin.H{"id": "h-1", "provider": "expedia", "price": 180.00}},
		},
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp submitBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "booking_7_1777890600000", resp.BookingID)
	assert.Equal(t, "partial", resp.Status)
	assert.Equal(t, 350.0, resp.TotalCost)
	assert.Equal(t, "2026-05-04T10:30:00Z", resp.EstimatedCompletion)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "no rooms left", resp.Failed[0].Error)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_submitRejectsInvalidBody(t *testing.T) {
	bodies := map[string]gin.H{
		"unknown component": {"trip_id": 7, "selections": []gin.H{
			{"component_type": "cruise", "selected_option": gin.H{"id": "c-1", "provider": "x", "price": 10}},
		}},
		"no selections": {"trip_id": 7, "selections": []gin.H{}},
		"zero trip":     {"trip_id": 0, "selections": []gin.H{{"component_type": "car", "selected_option": gin.H{"id": "c", "provider": "hertz", "price": 10}}}},
		"missing price": {"trip_id": 7, "selections": []gin.H{{"component_type": "car", "selected_option": gin.H{"id": "c", "provider": "hertz"}}}},
		"no option":     {"trip_id": 7, "selections": []gin.H{{"component_type": "car"}}},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			w := perform(newTestRouter(mockService), http.MethodPost, "/api/bookings", "user-1", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			mockService.AssertNotCalled(t, "ProcessTripBooking", mock.Anything, mock.Anything)
		})
	}
}

func TestBookingHandler_requiresUser(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	w := perform(router, http.MethodGet, "/api/bookings/booking_7_1", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockService.AssertNotCalled(t, "GetBookingStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingHandler_errorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad input", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: booking_7_1", domain.ErrOwnership), http.StatusForbidden},
		{fmt.Errorf("%w: booking_7_1", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: trip busy", domain.ErrConflict), http.StatusConflict},
		{&domain.PersistenceError{Op: "load booking", Err: errors.New("connection reset")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			mockService.On("GetBookingStatus", mock.Anything, "booking_7_1", "user-1").Return(nil, tt.err).Once()

			w := perform(newTestRouter(mockService), http.MethodGet, "/api/bookings/booking_7_1", "user-1", nil)

			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection reset")
			}
		})
	}
}

func TestBookingHandler_get(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	agg := domain.NewAggregate([]domain.ComponentBooking{{
		BookingID:          "booking_7_1",
		TripID:             7,
		UserID:             "user-1",
		ComponentType:      domain.ComponentTicket,
		Provider:           "stubhub",
		PriceCents:         8550,
		Status:             domain.ComponentStatusConfirmed,
		ConfirmationNumber: "FFEE001122",
		ProviderDetails:    json.RawMessage(`{"section":"B","row":"4","seat":"9"}`),
	}})
	mockService.On("GetBookingStatus", mock.Anything, "booking_7_1", "user-1").Return(agg, nil).Once()

	w := perform(router, http.MethodGet, "/api/bookings/booking_7_1", "user-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.Status)
	assert.Equal(t, 85.5, resp.TotalCost)
	assert.Equal(t, "none", resp.PaymentStatus)
	require.Len(t, resp.Components, 1)
	assert.JSONEq(t, `{"section":"B","row":"4","seat":"9"}`, string(resp.Components[0].Details))
}

func TestBookingHandler_history(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	page := &domain.BookingPage{
		Bookings: []domain.BookingSummary{{ID: "booking_7_1", TripID: 7, Status: domain.BookingStatusConfirmed, TotalCostCents: 61500, ComponentCount: 3, ConfirmedCount: 3}},
		Total:    11,
		Limit:    5,
		Offset:   10,
	}
	mockService.On("GetUserBookings", mock.Anything, "user-1", 5, 10).Return(page, nil).Once()

	w := perform(router, http.MethodGet, "/api/bookings?limit=5&offset=10", "user-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp bookingHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.Total)
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, 615.0, resp.Bookings[0].TotalCost)

	w = perform(router, http.MethodGet, "/api/bookings?limit=500", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	agg := domain.NewAggregate([]domain.ComponentBooking{{
		BookingID:     "booking_7_1",
		UserID:        "user-1",
		ComponentType: domain.ComponentFlight,
		Status:        domain.ComponentStatusCancelled,
	}})
	mockService.On("CancelBooking", mock.Anything, "booking_7_1", "user-1").Return(agg, nil).Once()

	w := perform(router, http.MethodDelete, "/api/bookings/booking_7_1", "user-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"booking_id":"booking_7_1","status":"cancelled"}`, w.Body.String())
}

func TestBookingHandler_refund(t *testing.T) {
	mockService := &MockBookingUseCase{}
	router := newTestRouter(mockService)

	w := perform(router, http.MethodPost, "/api/bookings/booking_7_1/refund", "user-1", gin.H{"reason": "too short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	refund := &domain.RefundRequest{
		ID:         3,
		BookingID:  "booking_7_1",
		UserID:     "user-1",
		Reason:     "flight was rescheduled",
		Components: []domain.ComponentType{domain.ComponentFlight},
		Status:     domain.RefundStatusRequested,
	}
	mockService.On("RequestRefund", mock.Anything, booking.RefundInput{
		BookingID:  "booking_7_1",
		UserID:     "user-1",
		Reason:     "flight was rescheduled",
		Components: []domain.ComponentType{domain.ComponentFlight},
	}).Return(refund, nil).Once()

	w = perform(router, http.MethodPost, "/api/bookings/booking_7_1/refund", "user-1", gin.H{
		"reason":     "flight was rescheduled",
		"components": []string{"flight"},
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp refundResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.RefundID)
	assert.Equal(t, "requested", resp.Status)
	assert.Equal(t, []string{"flight"}, resp.Components)
	mockService.AssertExpectations(t)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(1999), toCents(19.99))
	assert.Equal(t, int64(35000), toCents(350))
	assert.Equal(t, 615.0, fromCents(61500))
}
