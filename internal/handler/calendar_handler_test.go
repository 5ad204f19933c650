package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduleService 返回预置结果的 ScheduleService。
type fakeScheduleService struct {
	availability *model.AvailabilityResponse
	booking      *model.BookingResponse
	stored       *model.Booking
	err          error
}

func (f *fakeScheduleService) Availability(date, appointmentType, doctor string) (*model.AvailabilityResponse, error) {
	return f.availability, f.err
}

func (f *fakeScheduleService) Book(req *model.BookingRequest) (*model.BookingResponse, error) {
	return f.booking, f.err
}

func (f *fakeScheduleService) GetBooking(bookingID string) (*model.Booking, error) {
	if f.stored == nil {
		return nil, service.ErrBookingNotFound
	}
	return f.stored, f.err
}

func (f *fakeScheduleService) CancelBooking(bookingID string) (*model.Booking, error) {
	if f.stored == nil {
		return nil, service.ErrBookingNotFound
	}
	f.stored.Status = model.BookingStatusCancelled
	return f.stored, f.err
}

func newCalendarRouter(svc service.ScheduleService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewCalendarHandler(svc)
	r.GET("/api/v1/calendar/availability", h.Availability)
	r.POST("/api/v1/calendar/book", h.Book)
	r.GET("/api/v1/calendar/bookings/:id", h.GetBooking)
	r.DELETE("/api/v1/calendar/bookings/:id", h.CancelBooking)
	return r
}

func TestAvailabilityEndpoint(t *testing.T) {
	t.Run("missing parameters rejected", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/calendar/availability?date=2030-01-08", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "appointment_type")
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{err: service.ErrPastDate})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/calendar/availability?date=2020-01-01&appointment_type=Consultation", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "in the past")
	})

	t.Run("returns flat availability payload", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{availability: &model.AvailabilityResponse{
			Date:            "2030-01-08",
			AppointmentType: model.AppointmentConsultation,
			Slots: []model.TimeSlot{
				{Time: "10:00", Available: true, Doctor: "Dr. Smith", DurationMinutes: 30},
			},
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/calendar/availability?date=2030-01-08&appointment_type=Consultation", nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp model.AvailabilityResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Slots, 1)
		assert.Equal(t, "Dr. Smith", resp.Slots[0].Doctor)
	})
}

func TestBookEndpoint(t *testing.T) {
	validBody := `{
		"patient_name": "Jane Doe",
		"email": "jane@example.com",
		"phone": "+15550102030",
		"date": "2030-01-08",
		"time": "10:00",
		"appointment_type": "Consultation",
		"doctor": "Dr. Smith"
	}`

	t.Run("missing required fields rejected", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar/book",
			strings.NewReader(`{"patient_name": "Jane Doe"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("soft failure returns 200 with success false", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{booking: &model.BookingResponse{
			Success: false,
			Message: "This time slot is already booked. Please choose another time.",
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar/book", strings.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp model.BookingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Message, "already booked")
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{err: service.ErrBadPhone})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar/book", strings.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "at least 10 digits")
	})
}

func TestBookingLookupEndpoints(t *testing.T) {
	t.Run("unknown booking returns 404", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/calendar/bookings/missing", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Booking not found")
	})

	t.Run("cancel returns confirmation envelope", func(t *testing.T) {
		r := newCalendarRouter(&fakeScheduleService{stored: &model.Booking{
			BookingID: "abc-123",
			Status:    model.BookingStatusConfirmed,
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/calendar/bookings/abc-123", nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success bool          `json:"success"`
			Message string        `json:"message"`
			Booking model.Booking `json:"booking"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Contains(t, resp.Message, "abc-123")
		assert.Equal(t, model.BookingStatusCancelled, resp.Booking.Status)
	})
}
