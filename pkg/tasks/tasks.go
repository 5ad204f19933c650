// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 预约事件类型。
const (
	EventBooked    = "booked"
	EventCancelled = "cancelled"
)

// BookingEvent represents a booking lifecycle event published to Kafka.
// 消费端据此生成确认通知。
type BookingEvent struct {
	Event           string `json:"event"`
	BookingID       string `json:"booking_id"`
	PatientName     string `json:"patient_name"`
	Email           string `json:"email"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Doctor          string `json:"doctor"`
	AppointmentType string `json:"appointment_type"`
}
