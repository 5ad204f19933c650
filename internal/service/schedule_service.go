package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/repository"
	"clinic-agent-go/pkg/kafka"
	"clinic-agent-go/pkg/log"
	"clinic-agent-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 请求级校验错误，由 handler 映射为 400。
var (
	ErrBadDateFormat   = errors.New("date must be in YYYY-MM-DD format")
	ErrBadTimeFormat   = errors.New("time must be in HH:MM format")
	ErrPastDate        = errors.New("cannot book appointments in the past")
	ErrBadPhone        = errors.New("phone number must have at least 10 digits")
	ErrBadEmail        = errors.New("invalid email address")
	ErrBadAppointment  = errors.New("invalid appointment type")
	ErrBookingNotFound = errors.New("booking not found")
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	// 未知预约类型的兜底时长（分钟）
	fallbackDuration = 30
)

// 内置医生排班表，可被配置覆盖。Days 中 0 = 周一。
var defaultDoctorSchedules = map[string]config.DoctorSchedule{
	"Dr. Smith": {
		Days:       []int{0, 1, 2, 3, 4},
		Start:      "09:00",
		End:        "17:00",
		LunchStart: "12:00",
		LunchEnd:   "13:00",
	},
	"Dr. Johnson": {
		Days:       []int{0, 1, 2, 3, 4},
		Start:      "10:00",
		End:        "18:00",
		LunchStart: "13:00",
		LunchEnd:   "14:00",
	},
	"Dr. Williams": {
		Days:       []int{1, 2, 3, 4},
		Start:      "09:00",
		End:        "16:00",
		LunchStart: "12:30",
		LunchEnd:   "13:30",
	},
}

// 内置预约类型时长（分钟），可被配置覆盖。
var defaultDurations = map[string]int{
	model.AppointmentConsultation: 30,
	model.AppointmentFollowUp:     15,
	model.AppointmentCheckUp:      20,
	model.AppointmentVaccination:  10,
}

// ScheduleService 定义了排班查询与预约管理的操作接口。
type ScheduleService interface {
	// Availability 返回某日期某预约类型的全部候选时段及其占用状态。
	// doctor 非空时只查询该医生。
	Availability(date, appointmentType, doctor string) (*model.AvailabilityResponse, error)
	// Book 创建预约。业务规则不满足时返回 Success=false 而非错误。
	Book(req *model.BookingRequest) (*model.BookingResponse, error)
	GetBooking(bookingID string) (*model.Booking, error)
	// CancelBooking 把预约状态翻转为 cancelled，记录不删除。
	CancelBooking(bookingID string) (*model.Booking, error)
}

type scheduleService struct {
	bookingRepo repository.BookingRepository
	doctors     map[string]config.DoctorSchedule
	durations   map[string]int
}

// NewScheduleService 创建排班服务，配置中的医生与时长覆盖内置默认值。
func NewScheduleService(bookingRepo repository.BookingRepository, clinicCfg config.ClinicConfig) ScheduleService {
	doctors := make(map[string]config.DoctorSchedule, len(defaultDoctorSchedules))
	for name, schedule := range defaultDoctorSchedules {
		doctors[name] = schedule
	}
	for name, schedule := range clinicCfg.Doctors {
		doctors[name] = schedule
	}

	durations := make(map[string]int, len(defaultDurations))
	for appointmentType, minutes := range defaultDurations {
		durations[appointmentType] = minutes
	}
	for appointmentType, minutes := range clinicCfg.Durations {
		durations[appointmentType] = minutes
	}

	return &scheduleService{
		bookingRepo: bookingRepo,
		doctors:     doctors,
		durations:   durations,
	}
}

// Availability 按医生排班生成候选时段并标记占用情况。
func (s *scheduleService) Availability(date, appointmentType, doctor string) (*model.AvailabilityResponse, error) {
	dateObj, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, ErrBadDateFormat
	}
	if isPastDate(dateObj) {
		return nil, ErrPastDate
	}

	dayOfWeek := mondayIndexedWeekday(dateObj)
	duration := s.durationFor(appointmentType)

	doctorsToCheck := s.doctorNames()
	if doctor != "" {
		doctorsToCheck = []string{doctor}
	}

	// 一次取出当天全部未取消的预约，避免逐时段查库。
	active, err := s.bookingRepo.FindActiveByDate(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for date: %w", err)
	}
	taken := make(map[string]bool, len(active))
	for _, b := range active {
		taken[b.Doctor+" "+b.Time] = true
	}

	allSlots := make([]model.TimeSlot, 0)
	for _, name := range doctorsToCheck {
		schedule, ok := s.doctors[name]
		if !ok {
			continue
		}
		if !worksOnDay(schedule, dayOfWeek) {
			continue
		}
		for _, slotTime := range generateTimeSlots(schedule, duration) {
			allSlots = append(allSlots, model.TimeSlot{
				Time:            slotTime,
				Available:       !taken[name+" "+slotTime],
				Doctor:          name,
				DurationMinutes: duration,
			})
		}
	}

	message := ""
	if len(allSlots) == 0 {
		message = fmt.Sprintf("No availability found for %s. Please try another date.", date)
	} else if !anyAvailable(allSlots) {
		message = "All slots are currently booked. Please try another date."
	}

	return &model.AvailabilityResponse{
		Date:            date,
		AppointmentType: appointmentType,
		Slots:           allSlots,
		Message:         message,
	}, nil
}

// Book 先做格式校验，再按固定顺序做业务校验，任一业务校验失败即返回
// Success=false，后续校验不再执行。
func (s *scheduleService) Book(req *model.BookingRequest) (*model.BookingResponse, error) {
	dateObj, err := s.validateBookingRequest(req)
	if err != nil {
		return nil, err
	}

	if isPastDate(dateObj) {
		return failedBooking("Cannot book appointments in the past"), nil
	}

	schedule, ok := s.doctors[req.Doctor]
	if !ok {
		return failedBooking(fmt.Sprintf("Doctor '%s' not found", req.Doctor)), nil
	}

	if !worksOnDay(schedule, mondayIndexedWeekday(dateObj)) {
		return failedBooking(fmt.Sprintf("%s does not work on this day", req.Doctor)), nil
	}

	if !withinWorkingHours(schedule, req.Time) {
		return failedBooking(fmt.Sprintf(
			"Selected time is outside %s's working hours (%s - %s)",
			req.Doctor, schedule.Start, schedule.End,
		)), nil
	}

	taken, err := s.bookingRepo.ExistsActive(req.Date, req.Time, req.Doctor)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot occupancy: %w", err)
	}
	if taken {
		return failedBooking("This time slot is already booked. Please choose another time."), nil
	}

	booking := &model.Booking{
		BookingID:       uuid.New().String(),
		PatientName:     req.PatientName,
		Email:           req.Email,
		Phone:           req.Phone,
		Date:            req.Date,
		Time:            req.Time,
		AppointmentType: req.AppointmentType,
		Doctor:          req.Doctor,
		Notes:           req.Notes,
		DurationMinutes: s.durationFor(req.AppointmentType),
		Status:          model.BookingStatusConfirmed,
	}
	if err := s.bookingRepo.Create(booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.publishEvent(tasks.EventBooked, booking)

	return &model.BookingResponse{
		Success:   true,
		BookingID: booking.BookingID,
		Message: fmt.Sprintf(
			"Appointment successfully booked with %s on %s at %s",
			booking.Doctor, booking.Date, booking.Time,
		),
		AppointmentDetails: booking,
	}, nil
}

// GetBooking 返回单条预约记录。
func (s *scheduleService) GetBooking(bookingID string) (*model.Booking, error) {
	booking, err := s.bookingRepo.FindByID(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return booking, nil
}

// CancelBooking 取消预约并发布取消事件。重复取消是幂等的。
func (s *scheduleService) CancelBooking(bookingID string) (*model.Booking, error) {
	booking, err := s.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.BookingStatusCancelled {
		booking.Status = model.BookingStatusCancelled
		if err := s.bookingRepo.Update(booking); err != nil {
			return nil, fmt.Errorf("failed to cancel booking: %w", err)
		}
		s.publishEvent(tasks.EventCancelled, booking)
	}
	return booking, nil
}

// validateBookingRequest 做请求格式校验并返回解析后的日期。
func (s *scheduleService) validateBookingRequest(req *model.BookingRequest) (time.Time, error) {
	dateObj, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return time.Time{}, ErrBadDateFormat
	}
	if _, err := time.Parse(clockLayout, req.Time); err != nil {
		return time.Time{}, ErrBadTimeFormat
	}
	if countDigits(req.Phone) < 10 {
		return time.Time{}, ErrBadPhone
	}
	at := strings.Index(req.Email, "@")
	if at <= 0 || at == len(req.Email)-1 {
		return time.Time{}, ErrBadEmail
	}
	if _, ok := s.durations[req.AppointmentType]; !ok {
		return time.Time{}, ErrBadAppointment
	}
	return dateObj, nil
}

// publishEvent 发布预约生命周期事件。发布失败只记录日志，不影响主流程。
func (s *scheduleService) publishEvent(event string, booking *model.Booking) {
	err := kafka.ProduceBookingEvent(tasks.BookingEvent{
		Event:           event,
		BookingID:       booking.BookingID,
		PatientName:     booking.PatientName,
		Email:           booking.Email,
		Date:            booking.Date,
		Time:            booking.Time,
		Doctor:          booking.Doctor,
		AppointmentType: booking.AppointmentType,
	})
	if err != nil {
		log.Errorf("[ScheduleService] 发布预约事件失败: event=%s booking=%s err=%v", event, booking.BookingID, err)
	}
}

func (s *scheduleService) durationFor(appointmentType string) int {
	if minutes, ok := s.durations[appointmentType]; ok {
		return minutes
	}
	return fallbackDuration
}

// doctorNames 返回排序后的医生名单，保证遍历顺序稳定。
func (s *scheduleService) doctorNames() []string {
	names := make([]string, 0, len(s.doctors))
	for name := range s.doctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// generateTimeSlots 按时长步进生成候选时段，跳过午休，丢弃超出结束时间的尾段。
func generateTimeSlots(schedule config.DoctorSchedule, duration int) []string {
	start, err1 := time.Parse(clockLayout, schedule.Start)
	end, err2 := time.Parse(clockLayout, schedule.End)
	if err1 != nil || err2 != nil {
		return nil
	}
	lunchStart, lunchErr1 := time.Parse(clockLayout, schedule.LunchStart)
	lunchEnd, lunchErr2 := time.Parse(clockLayout, schedule.LunchEnd)
	hasLunch := lunchErr1 == nil && lunchErr2 == nil

	step := time.Duration(duration) * time.Minute
	slots := make([]string, 0)
	for current := start; current.Before(end); current = current.Add(step) {
		// 与午休区间有任何重叠的时段都跳过，包括起点在午休前、终点越入午休的情况。
		if hasLunch && current.Before(lunchEnd) && current.Add(step).After(lunchStart) {
			continue
		}
		if slotEnd := current.Add(step); slotEnd.After(end) {
			continue
		}
		slots = append(slots, current.Format(clockLayout))
	}
	return slots
}

// withinWorkingHours 判断 HH:MM 时间是否落在 [Start, End) 区间内。
func withinWorkingHours(schedule config.DoctorSchedule, clock string) bool {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return false
	}
	start, err1 := time.Parse(clockLayout, schedule.Start)
	end, err2 := time.Parse(clockLayout, schedule.End)
	if err1 != nil || err2 != nil {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

// mondayIndexedWeekday 把 time.Weekday（0=周日）换算为 0=周一 的下标。
func mondayIndexedWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func isPastDate(dateObj time.Time) bool {
	today, _ := time.Parse(dateLayout, time.Now().Format(dateLayout))
	return dateObj.Before(today)
}

func worksOnDay(schedule config.DoctorSchedule, dayOfWeek int) bool {
	for _, day := range schedule.Days {
		if day == dayOfWeek {
			return true
		}
	}
	return false
}

func anyAvailable(slots []model.TimeSlot) bool {
	for _, slot := range slots {
		if slot.Available {
			return true
		}
	}
	return false
}

func countDigits(phone string) int {
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func failedBooking(message string) *model.BookingResponse {
	return &model.BookingResponse{Success: false, Message: message}
}
