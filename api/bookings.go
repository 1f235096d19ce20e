package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

const (
	UserHeader = "X-User-ID"
	userKey    = "user_id"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type selectedOption struct {
	ID           string          `json:"id" binding:"required"`
	Provider     string          `json:"provider" binding:"required"`
	Price        float64         `json:"price" binding:"required,gt=0"`
	Features     json.RawMessage `json:"features,omitempty"`
	Availability json.RawMessage `json:"availability,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

type selectionRequest struct {
	ComponentType  string          `json:"component_type" binding:"required,oneof=flight hotel ticket car transportation"`
	SelectedOption *selectedOption `json:"selected_option" binding:"required"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

type submitBookingRequest struct {
	TripID     int64              `json:"trip_id" binding:"required,gt=0"`
	Selections []selectionRequest `json:"selections" binding:"required,min=1,dive"`
}

type refundRequest struct {
	Reason     string   `json:"reason" binding:"required,min=10"`
	Components []string `json:"components,omitempty" binding:"omitempty,dive,oneof=flight hotel ticket car transportation"`
}

type componentResultResponse struct {
	ComponentType      string          `json:"component_type"`
	Provider           string          `json:"provider"`
	Price              float64         `json:"price"`
	Status             string          `json:"status"`
	ProviderReference  string          `json:"provider_reference,omitempty"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	Details            json.RawMessage `json:"details,omitempty"`
	Customizations     json.RawMessage `json:"customizations,omitempty"`
	Error              string          `json:"error,omitempty"`
}

type submitBookingResponse struct {
	BookingID           string                    `json:"booking_id"`
	Status              string                    `json:"status"`
	EstimatedCompletion string                    `json:"estimated_completion"`
	ComponentCount      int                       `json:"component_count"`
	TotalCost           float64                   `json:"total_cost"`
	Confirmed           []componentResultResponse `json:"confirmed"`
	Failed              []componentResultResponse `json:"failed"`
}

type componentResponse struct {
	ComponentType      string          `json:"component_type"`
	Provider           string          `json:"provider"`
	OptionID           string          `json:"option_id"`
	Price              float64         `json:"price"`
	Status             string          `json:"status"`
	ProviderReference  string          `json:"provider_reference,omitempty"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	Details            json.RawMessage `json:"details,omitempty"`
	Error              string          `json:"error,omitempty"`
	BookedAt           string          `json:"booked_at,omitempty"`
	CancelledAt        string          `json:"cancelled_at,omitempty"`
}

type bookingResponse struct {
	BookingID     string              `json:"booking_id"`
	TripID        int64               `json:"trip_id"`
	Status        string              `json:"status"`
	TotalCost     float64             `json:"total_cost"`
	PaymentStatus string              `json:"payment_status"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
	Components    []componentResponse `json:"components"`
}

type bookingSummaryResponse struct {
	BookingID      string  `json:"booking_id"`
	TripID         int64   `json:"trip_id"`
	Status         string  `json:"status"`
	TotalCost      float64 `json:"total_cost"`
	ComponentCount int     `json:"component_count"`
	ConfirmedCount int     `json:"confirmed_count"`
	CreatedAt      string  `json:"created_at"`
}

type bookingHistoryResponse struct {
	Bookings []bookingSummaryResponse `json:"bookings"`
	Total    int                      `json:"total"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

type historyQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

type refundResponse struct {
	RefundID   int64    `json:"refund_id"`
	BookingID  string   `json:"booking_id"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason"`
	Components []string `json:"components,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.Use(RequireUser())
	router.POST("", h.submit)
	router.GET("", h.history)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/refund", h.refund)
}

// RequireUser rejects requests that do not carry the authenticated user id.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func (h *BookingHandler) submit(c *gin.Context) {
	var req submitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selections := make([]domain.Selection, 0, len(req.Selections))
	for _, s := range req.Selections {
		selections = append(selections, domain.Selection{
			ComponentType:  domain.ComponentType(s.ComponentType),
			OptionID:       s.SelectedOption.ID,
			Provider:       s.SelectedOption.Provider,
			PriceCents:     toCents(s.SelectedOption.Price),
			Details:        s.SelectedOption.Details,
			Customizations: s.Customizations,
		})
	}

	result, err := h.service.ProcessTripBooking(c.Request.Context(), booking.SubmitInput{
		UserID:     c.GetString(userKey),
		TripID:     req.TripID,
		Selections: selections,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submitBookingResponse{
		BookingID:           result.BookingID,
		Status:              string(result.Status),
		EstimatedCompletion: result.CompletedAt.Format(time.RFC3339),
		ComponentCount:      result.ComponentCount,
		TotalCost:           fromCents(result.TotalCostCents),
		Confirmed:           toResultResponses(result.Confirmed),
		Failed:              toResultResponses(result.Failed),
	})
}

func (h *BookingHandler) get(c *gin.Context) {
	agg, err := h.service.GetBookingStatus(c.Request.Context(), c.Param("id"), c.GetString(userKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(agg))
}

func (h *BookingHandler) history(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.service.GetUserBookings(c.Request.Context(), c.GetString(userKey), q.Limit, q.Offset)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := bookingHistoryResponse{
		Bookings: make([]bookingSummaryResponse, 0, len(page.Bookings)),
		Total:    page.Total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
	for _, b := range page.Bookings {
		resp.Bookings = append(resp.Bookings, bookingSummaryResponse{
			BookingID:      b.ID,
			TripID:         b.TripID,
			Status:         string(b.Status),
			TotalCost:      fromCents(b.TotalCostCents),
			ComponentCount: b.ComponentCount,
			ConfirmedCount: b.ConfirmedCount,
			CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	agg, err := h.service.CancelBooking(c.Request.Context(), c.Param("id"), c.GetString(userKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": agg.ID, "status": string(agg.Status)})
}

func (h *BookingHandler) refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	components := make([]domain.ComponentType, 0, len(req.Components))
	for _, ct := range req.Components {
		components = append(components, domain.ComponentType(ct))
	}

	refund, err := h.service.RequestRefund(c.Request.Context(), booking.RefundInput{
		BookingID:  c.Param("id"),
		UserID:     c.GetString(userKey),
		Reason:     req.Reason,
		Components: components,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := refundResponse{
		RefundID:  refund.ID,
		BookingID: refund.BookingID,
		Status:    string(refund.Status),
		Reason:    refund.Reason,
		CreatedAt: refund.CreatedAt.Format(time.RFC3339),
	}
	for _, ct := range refund.Components {
		resp.Components = append(resp.Components, string(ct))
	}
	c.JSON(http.StatusAccepted, resp)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrOwnership):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toResultResponses(results []domain.ComponentResult) []componentResultResponse {
	out := make([]componentResultResponse, 0, len(results))
	for _, r := range results {
		resp := componentResultResponse{
			ComponentType:      string(r.ComponentType),
			Provider:           r.Provider,
			Price:              fromCents(r.PriceCents),
			Status:             string(r.Status),
			ProviderReference:  r.ProviderReference,
			ConfirmationNumber: r.ConfirmationNumber,
			Details:            r.Details,
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}

func toBookingResponse(agg *domain.BookingAggregate) bookingResponse {
	resp := bookingResponse{
		BookingID:     agg.ID,
		TripID:        agg.TripID,
		Status:        string(agg.Status),
		TotalCost:     fromCents(agg.TotalCostCents),
		PaymentStatus: string(agg.PaymentStatus),
		CreatedAt:     agg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     agg.UpdatedAt.Format(time.RFC3339),
		Components:    make([]componentResponse, 0, len(agg.Components)),
	}
	for _, c := range agg.Components {
		resp.Components = append(resp.Components, componentResponse{
			ComponentType:      string(c.ComponentType),
			Provider:           c.Provider,
			OptionID:           c.OptionID,
			Price:              fromCents(c.PriceCents),
			Status:             string(c.Status),
			ProviderReference:  c.ProviderReference,
			ConfirmationNumber: c.ConfirmationNumber,
			Details:            c.ProviderDetails,
			Customizations:     c.Customizations,
			Error:              c.Error,
			BookedAt:           formatTime(c.BookedAt),
			CancelledAt:        formatTime(c.CancelledAt),
		})
	}
	return resp
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
