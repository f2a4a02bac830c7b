package storage

import (
	"context"
	"errors"
	"time"

	"github.com/classtrack/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertAttendance inserts the day's record or, when one already exists for
// (student, date), overwrites is_present and recorded_at. At most one row
// per pair ever exists.
func (s *Store) UpsertAttendance(ctx context.Context, studentID, date string, isPresent bool) (*models.Attendance, error) {
	entry := models.Attendance{
		StudentID:  studentID,
		Date:       date,
		IsPresent:  isPresent,
		RecordedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_present", "recorded_at"}),
	}).Create(&entry).Error
	if err != nil {
		return nil, err
	}

	// On conflict the generated ID is discarded; read back the stored row.
	var stored models.Attendance
	if err := s.db.WithContext(ctx).First(&stored, "student_id = ? AND date = ?", studentID, date).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) GetAttendanceForDate(ctx context.Context, studentID, date string) (*models.Attendance, error) {
	var entry models.Attendance
	err := s.db.WithContext(ctx).First(&entry, "student_id = ? AND date = ?", studentID, date).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// AttendanceRecord is the joined attendance view for the teacher listing.
type AttendanceRecord struct {
	AttendanceID string    `json:"attendance_id"`
	Date         string    `json:"date"`
	IsPresent    bool      `json:"is_present"`
	RecordedAt   time.Time `json:"recorded_at"`
	StudentID    string    `json:"student_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"student_username"`
}

type ListAttendanceParams struct {
	Page      int
	Limit     int
	StudentID string
	StartDate string
	EndDate   string
	IsPresent *bool
}

func (s *Store) ListAttendance(ctx context.Context, params ListAttendanceParams) ([]AttendanceRecord, int64, error) {
	q := s.db.WithContext(ctx).Table("attendance").
		Joins("JOIN students ON students.id = attendance.student_id").
		Joins("JOIN users ON users.id = students.user_id")

	if params.StudentID != "" {
		q = q.Where("students.id = ?", params.StudentID)
	}
	if params.StartDate != "" {
		q = q.Where("attendance.date >= ?", params.StartDate)
	}
	if params.EndDate != "" {
		q = q.Where("attendance.date <= ?", params.EndDate)
	}
	if params.IsPresent != nil {
		q = q.Where("attendance.is_present = ?", *params.IsPresent)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.Limit
	var records []AttendanceRecord
	err := q.Select(`attendance.id AS attendance_id, attendance.date, attendance.is_present, attendance.recorded_at,
			students.id AS student_id, students.first_name, students.last_name, users.username`).
		Order("attendance.date DESC, attendance.recorded_at DESC").
		Offset(offset).
		Limit(params.Limit).
		Scan(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) AttendanceStats(ctx context.Context, studentID string) (present, absent int64, err error) {
	err = s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("student_id = ? AND is_present = ?", studentID, true).
		Count(&present).Error
	if err != nil {
		return 0, 0, err
	}
	err = s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("student_id = ? AND is_present = ?", studentID, false).
		Count(&absent).Error
	if err != nil {
		return 0, 0, err
	}
	return present, absent, nil
}

type DashboardStats struct {
	TotalStudents int64 `json:"totalStudents"`
	PresentToday  int64 `json:"presentToday"`
	AbsentToday   int64 `json:"absentToday"`
}

func (s *Store) DashboardStats(ctx context.Context, date string) (*DashboardStats, error) {
	var stats DashboardStats

	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleStudent, true).
		Count(&stats.TotalStudents).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("date = ? AND is_present = ?", date, true).
		Count(&stats.PresentToday).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Table("students").
		Joins("JOIN users ON users.id = students.user_id").
		Where("users.role = ? AND users.is_active = ?", models.RoleStudent, true).
		Where("students.id NOT IN (?)",
			s.db.Model(&models.Attendance{}).Select("student_id").Where("date = ? AND is_present = ?", date, true)).
		Count(&stats.AbsentToday).Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
