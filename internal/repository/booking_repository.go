// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"clinic-agent-go/internal/model"

	"gorm.io/gorm"
)

// BookingRepository 接口定义了预约记录的持久化操作。
type BookingRepository interface {
	Create(booking *model.Booking) error
	FindByID(bookingID string) (*model.Booking, error)
	Update(booking *model.Booking) error
	// ExistsActive 判断 (date, time, doctor) 时段是否已有未取消的预约。
	ExistsActive(date, time, doctor string) (bool, error)
	FindActiveByDate(date string) ([]model.Booking, error)
}

// bookingRepository 是 BookingRepository 接口的 GORM 实现。
type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建一个新的 BookingRepository 实例。
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// Create 在数据库中创建一条新的预约记录。
func (r *bookingRepository) Create(booking *model.Booking) error {
	return r.db.Create(booking).Error
}

// FindByID 根据预约 ID 查找一条预约记录。
func (r *bookingRepository) FindByID(bookingID string) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.Where("booking_id = ?", bookingID).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Update 更新数据库中一条已存在的预约记录。
func (r *bookingRepository) Update(booking *model.Booking) error {
	return r.db.Save(booking).Error
}

// ExistsActive 检查指定时段是否已被未取消的预约占用。
func (r *bookingRepository) ExistsActive(date, time, doctor string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Booking{}).
		Where("date = ? AND time = ? AND doctor = ? AND status <> ?",
			date, time, doctor, model.BookingStatusCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveByDate 返回某日期全部未取消的预约记录。
func (r *bookingRepository) FindActiveByDate(date string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.Where("date = ? AND status <> ?", date, model.BookingStatusCancelled).
		Find(&bookings).Error
	return bookings, err
}
