package storage

import (
	"context"
	"errors"

	"github.com/classtrack/backend/internal/models"
	"gorm.io/gorm"
)

// StudentRecord is the joined user+student view the teacher surface works
// with.
type StudentRecord struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Mobile      string  `json:"mobile"`
	IsActive    bool    `json:"is_active"`
	StudentID   string  `json:"student_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Address     *string `json:"address"`
}

type ListStudentsParams struct {
	Page        int
	Limit       int
	FilterBy    string
	FilterValue string
	SortBy      string
	SortOrder   string
}

// Filter and sort columns are allow-listed; anything else is ignored rather
// than interpolated into SQL.
var studentColumns = map[string]string{
	"username":   "users.username",
	"email":      "users.email",
	"mobile":     "users.mobile",
	"first_name": "students.first_name",
	"last_name":  "students.last_name",
}

const studentSelect = `users.id AS user_id, users.username, users.email, users.mobile, users.is_active,
	students.id AS student_id, students.first_name, students.last_name, students.date_of_birth, students.address`

func (s *Store) studentQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("users").
		Joins("JOIN students ON students.user_id = users.id").
		Where("users.role = ?", models.RoleStudent)
}

func (s *Store) GetStudentRecord(ctx context.Context, studentID string) (*StudentRecord, error) {
	var record StudentRecord
	err := s.studentQuery(ctx).
		Select(studentSelect).
		Where("students.id = ?", studentID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListStudents(ctx context.Context, params ListStudentsParams) ([]StudentRecord, int64, error) {
	q := s.studentQuery(ctx)

	if params.FilterBy == "is_active" {
		q = q.Where("users.is_active = ?", params.FilterValue == "true")
	} else if col, ok := studentColumns[params.FilterBy]; ok && params.FilterValue != "" {
		q = q.Where("LOWER("+col+") LIKE LOWER(?)", "%"+params.FilterValue+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if col, ok := studentColumns[params.SortBy]; ok {
		order := "ASC"
		if params.SortOrder == "desc" {
			order = "DESC"
		}
		q = q.Order(col + " " + order)
	}

	offset := (params.Page - 1) * params.Limit
	var records []StudentRecord
	err := q.Select(studentSelect).
		Offset(offset).
		Limit(params.Limit).
		Scan(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// UserUpdate holds the optional fields of a partial user update. Changes
// yields only the fields that were actually provided.
type UserUpdate struct {
	Username *string
	Email    *string
	Mobile   *string
	IsActive *bool
}

func (u UserUpdate) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if u.Username != nil {
		changes["username"] = *u.Username
	}
	if u.Email != nil {
		changes["email"] = *u.Email
	}
	if u.Mobile != nil {
		changes["mobile"] = *u.Mobile
	}
	if u.IsActive != nil {
		changes["is_active"] = *u.IsActive
	}
	return changes
}

// StudentUpdate holds the optional fields of a partial student update.
type StudentUpdate struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *string
	Address     *string
}

func (u StudentUpdate) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if u.FirstName != nil {
		changes["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		changes["last_name"] = *u.LastName
	}
	if u.DateOfBirth != nil {
		changes["date_of_birth"] = *u.DateOfBirth
	}
	if u.Address != nil {
		changes["address"] = *u.Address
	}
	return changes
}

// UpdateStudent applies both partial updates in one transaction and returns
// the resulting joined record.
func (s *Store) UpdateStudent(ctx context.Context, studentID string, user UserUpdate, student StudentUpdate) (*StudentRecord, error) {
	var existing models.Student
	if err := s.db.WithContext(ctx).First(&existing, "id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if changes := user.Changes(); len(changes) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", existing.UserID).Updates(changes).Error; err != nil {
				return err
			}
		}
		if changes := student.Changes(); len(changes) > 0 {
			if err := tx.Model(&models.Student{}).Where("id = ?", studentID).Updates(changes).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return s.GetStudentRecord(ctx, studentID)
}

// DeactivateStudent soft-deletes the owning user. Student rows are never
// removed.
func (s *Store) DeactivateStudent(ctx context.Context, studentID string) (*models.User, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).First(&student, "id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", student.UserID).
		Update("is_active", false).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", student.UserID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExportRow is one CSV line of the student export.
type ExportRow struct {
	Username    string
	Email       string
	Mobile      string
	FirstName   string
	LastName    string
	DateOfBirth *string
	Address     *string
}

// ForEachExportRow runs the filtered export query and hands rows to fn one
// at a time, without materializing the result set. fn blocking on a slow
// sink is the backpressure mechanism: the cursor does not advance until fn
// returns.
func (s *Store) ForEachExportRow(ctx context.Context, filterBy, filterValue string, fn func(ExportRow) error) error {
	q := s.studentQuery(ctx).
		Select(`users.username, users.email, users.mobile,
			students.first_name, students.last_name, students.date_of_birth, students.address`)

	if col, ok := studentColumns[filterBy]; ok && filterValue != "" {
		q = q.Where("LOWER("+col+") LIKE LOWER(?)", "%"+filterValue+"%")
	}

	rows, err := q.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var row ExportRow
		if err := s.db.ScanRows(rows, &row); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
