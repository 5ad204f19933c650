package handler

import (
	"errors"
	"fmt"
	"net/http"

	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/service"
	"clinic-agent-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CalendarHandler 负责排班查询与预约管理的 API 请求。
// 这组接口同时被 Agent 的函数工具回调，响应体保持扁平的资源结构。
type CalendarHandler struct {
	scheduleService service.ScheduleService
}

// NewCalendarHandler 创建一个新的 CalendarHandler 实例。
func NewCalendarHandler(scheduleService service.ScheduleService) *CalendarHandler {
	return &CalendarHandler{scheduleService: scheduleService}
}

// 请求级校验错误集合，统一映射为 400。
var validationErrors = []error{
	service.ErrBadDateFormat,
	service.ErrBadTimeFormat,
	service.ErrPastDate,
	service.ErrBadPhone,
	service.ErrBadEmail,
	service.ErrBadAppointment,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Availability 返回某日期某预约类型的可用时段。
func (h *CalendarHandler) Availability(c *gin.Context) {
	date := c.Query("date")
	appointmentType := c.Query("appointment_type")
	doctor := c.Query("doctor")

	if date == "" || appointmentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "date and appointment_type are required",
		})
		return
	}

	resp, err := h.scheduleService.Availability(date, appointmentType, doctor)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("Availability: failed to compute availability", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Error retrieving availability: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Book 创建一条预约。业务规则不满足时返回 200 与 Success=false。
func (h *CalendarHandler) Book(c *gin.Context) {
	var req model.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Book: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking payload: missing required fields"})
		return
	}

	resp, err := h.scheduleService.Book(&req)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("Book: failed to create booking", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Error booking appointment: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetBooking 返回单条预约详情。
func (h *CalendarHandler) GetBooking(c *gin.Context) {
	bookingID := c.Param("id")
	booking, err := h.scheduleService.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, service.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
			return
		}
		log.Error("GetBooking: failed to load booking", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking 取消单条预约。
func (h *CalendarHandler) CancelBooking(c *gin.Context) {
	bookingID := c.Param("id")
	booking, err := h.scheduleService.CancelBooking(bookingID)
	if err != nil {
		if errors.Is(err, service.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
			return
		}
		log.Error("CancelBooking: failed to cancel booking", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel booking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Booking %s has been cancelled", bookingID),
		"booking": booking,
	})
}
