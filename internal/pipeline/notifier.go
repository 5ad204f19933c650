// Package pipeline 包含预约事件的异步处理逻辑。
package pipeline

import (
	"context"
	"fmt"

	"clinic-agent-go/internal/repository"
	"clinic-agent-go/pkg/log"
	"clinic-agent-go/pkg/tasks"
)

// Notifier 消费预约生命周期事件并向患者发出确认通知。
// 通知发送成功后把预约标记为已通知，保证消费幂等。
type Notifier struct {
	bookingRepo repository.BookingRepository
}

// NewNotifier 创建预约通知处理器。
func NewNotifier(bookingRepo repository.BookingRepository) *Notifier {
	return &Notifier{bookingRepo: bookingRepo}
}

// Process 实现 kafka.EventProcessor。
func (n *Notifier) Process(ctx context.Context, event tasks.BookingEvent) error {
	switch event.Event {
	case tasks.EventBooked:
		return n.notifyBooked(event)
	case tasks.EventCancelled:
		return n.notifyCancelled(event)
	default:
		// 未知事件类型直接丢弃，避免卡住消费进度
		log.Warnf("[Notifier] 收到未知事件类型: %s", event.Event)
		return nil
	}
}

func (n *Notifier) notifyBooked(event tasks.BookingEvent) error {
	booking, err := n.bookingRepo.FindByID(event.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking for notification: %w", err)
	}
	if booking.Notified {
		return nil
	}

	// 邮件通道尚未接入，先以日志形式落地确认文案
	message := fmt.Sprintf(
		"Dear %s, your %s with %s on %s at %s is confirmed. Booking ID: %s.",
		event.PatientName, event.AppointmentType, event.Doctor,
		event.Date, event.Time, event.BookingID,
	)
	log.Infof("[Notifier] 发送预约确认: to=%s content=%q", event.Email, message)

	booking.Notified = true
	if err := n.bookingRepo.Update(booking); err != nil {
		return fmt.Errorf("failed to mark booking as notified: %w", err)
	}
	return nil
}

func (n *Notifier) notifyCancelled(event tasks.BookingEvent) error {
	message := fmt.Sprintf(
		"Dear %s, your %s with %s on %s at %s has been cancelled.",
		event.PatientName, event.AppointmentType, event.Doctor,
		event.Date, event.Time,
	)
	log.Infof("[Notifier] 发送取消通知: to=%s content=%q", event.Email, message)
	return nil
}
