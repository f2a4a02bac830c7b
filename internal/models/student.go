package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DateLayout is the calendar-date format used for attendance and birth
// dates throughout the API.
const DateLayout = "2006-01-02"

// Student extends a User with role "student". Created only alongside its
// User row, in the same transaction.
type Student struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;uniqueIndex"`
	FirstName   string    `json:"first_name" gorm:"not null"`
	LastName    string    `json:"last_name" gorm:"not null"`
	DateOfBirth *string   `json:"date_of_birth"`
	Address     *string   `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Attendance holds at most one row per (student, date); re-marking the same
// date overwrites is_present and recorded_at.
type Attendance struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	StudentID  string    `json:"student_id" gorm:"not null;uniqueIndex:idx_attendance_student_date"`
	Date       string    `json:"date" gorm:"not null;uniqueIndex:idx_attendance_student_date"`
	IsPresent  bool      `json:"is_present" gorm:"not null"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null"`
}

func (Attendance) TableName() string {
	return "attendance"
}

func (a *Attendance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

const (
	LoginStatusSuccess = "success"
	LoginStatusFailure = "failure"
)

// LoginLog is an append-only audit row for one authentication attempt.
// UserID is nil when the username did not match any account.
type LoginLog struct {
	ID        string    `json:"-" gorm:"primaryKey"`
	UserID    *string   `json:"-" gorm:"index"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Status    string    `json:"status" gorm:"not null"`
	LoginTime time.Time `json:"login_time" gorm:"not null"`
}

func (l *LoginLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
