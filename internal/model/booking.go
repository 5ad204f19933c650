// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 预约类型枚举，与工具 schema 中的 enum 保持一致。
const (
	AppointmentConsultation = "Consultation"
	AppointmentFollowUp     = "Follow-up"
	AppointmentCheckUp      = "Check-up"
	AppointmentVaccination  = "Vaccination"
)

// 预约状态。预约记录只会从 confirmed 翻转为 cancelled，从不物理删除。
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Booking 代表一条预约记录。
type Booking struct {
	BookingID       string    `gorm:"primaryKey;size:36" json:"booking_id"`
	PatientName     string    `gorm:"size:255;not null" json:"patient_name"`
	Email           string    `gorm:"size:255;not null" json:"email"`
	Phone           string    `gorm:"size:64;not null" json:"phone"`
	Date            string    `gorm:"size:10;index:idx_slot;not null" json:"date"`
	Time            string    `gorm:"size:5;index:idx_slot;not null" json:"time"`
	AppointmentType string    `gorm:"size:32;not null" json:"appointment_type"`
	Doctor          string    `gorm:"size:255;index:idx_slot;not null" json:"doctor"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `gorm:"size:16;not null" json:"status"`
	Notified        bool      `json:"notified"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

// TimeSlot 是按排班动态计算出的候选时段，不落库。
type TimeSlot struct {
	Time            string `json:"time"`
	Available       bool   `json:"available"`
	Doctor          string `json:"doctor"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AvailabilityResponse 定义了可用时段查询的响应体。
type AvailabilityResponse struct {
	Date            string     `json:"date"`
	AppointmentType string     `json:"appointment_type"`
	Slots           []TimeSlot `json:"slots"`
	Message         string     `json:"message,omitempty"`
}

// BookingRequest 定义了预约接口的请求体。
type BookingRequest struct {
	PatientName     string `json:"patient_name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Phone           string `json:"phone" binding:"required"`
	Date            string `json:"date" binding:"required"`
	Time            string `json:"time" binding:"required"`
	AppointmentType string `json:"appointment_type" binding:"required"`
	Doctor          string `json:"doctor" binding:"required"`
	Notes           string `json:"notes"`
}

// BookingResponse 定义了预约接口的响应体。
// 校验失败通过 Success=false + Message 表达，不抛异常。
type BookingResponse struct {
	Success            bool     `json:"success"`
	BookingID          string   `json:"booking_id,omitempty"`
	Message            string   `json:"message"`
	AppointmentDetails *Booking `json:"appointment_details,omitempty"`
}
