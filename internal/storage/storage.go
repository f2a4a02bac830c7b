package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classtrack/backend/internal/config"
	"github.com/classtrack/backend/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrDuplicate       = errors.New("duplicate user")
)

type Storage interface {
	// Users and authentication.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserAuthClosure(ctx context.Context, userID string) ([]models.RoleGrant, error)
	GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	UserExists(ctx context.Context, username, email, mobile, excludeUserID string) (bool, error)
	CreateTeacher(ctx context.Context, user *models.User, roleID string) error
	CreateStudentAccount(ctx context.Context, user *models.User, roleID string, student *models.Student) error

	// Login audit trail.
	RecordLoginAttempt(ctx context.Context, entry *models.LoginLog) error
	LoginActivity(ctx context.Context, userID string, since time.Time) ([]models.LoginLog, error)

	// Student roster.
	GetStudentRecord(ctx context.Context, studentID string) (*StudentRecord, error)
	ListStudents(ctx context.Context, params ListStudentsParams) ([]StudentRecord, int64, error)
	UpdateStudent(ctx context.Context, studentID string, user UserUpdate, student StudentUpdate) (*StudentRecord, error)
	DeactivateStudent(ctx context.Context, studentID string) (*models.User, error)
	ForEachExportRow(ctx context.Context, filterBy, filterValue string, fn func(ExportRow) error) error

	// Attendance.
	UpsertAttendance(ctx context.Context, studentID, date string, isPresent bool) (*models.Attendance, error)
	GetAttendanceForDate(ctx context.Context, studentID, date string) (*models.Attendance, error)
	ListAttendance(ctx context.Context, params ListAttendanceParams) ([]AttendanceRecord, int64, error)
	AttendanceStats(ctx context.Context, studentID string) (present, absent int64, err error)
	DashboardStats(ctx context.Context, date string) (*DashboardStats, error)

	GetDB() *gorm.DB
}

type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection and migrates the schema. TranslateError
// must be enabled on the connection so unique violations surface as
// gorm.ErrDuplicatedKey regardless of driver.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.RolePermission{},
		&models.UserRole{},
		&models.Student{},
		&models.Attendance{},
		&models.LoginLog{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return New(db)
}

func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}

func (s *Store) GetDB() *gorm.DB {
	return s.db
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserAuthClosure returns every (role, permission) pair reachable from
// the user in one pass. Roles without permissions still appear, with an
// empty permission name.
func (s *Store) GetUserAuthClosure(ctx context.Context, userID string) ([]models.RoleGrant, error) {
	var grants []models.RoleGrant
	err := s.db.WithContext(ctx).Raw(`
		SELECT roles.id AS role_id,
		       roles.name AS role_name,
		       COALESCE(permissions.name, '') AS permission_name
		FROM user_roles
		JOIN roles ON roles.id = user_roles.role_id
		LEFT JOIN role_permissions ON role_permissions.role_id = roles.id
		LEFT JOIN permissions ON permissions.id = role_permissions.permission_id
		WHERE user_roles.user_id = ?`, userID).Scan(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).First(&student, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).First(&role, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// UserExists reports whether any user already holds the given username,
// email, or mobile. excludeUserID skips one user, for update conflict
// checks against everyone but the user being edited.
func (s *Store) UserExists(ctx context.Context, username, email, mobile, excludeUserID string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ? OR mobile = ?", username, email, mobile)
	if excludeUserID != "" {
		q = q.Where("id <> ?", excludeUserID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateTeacher inserts the user and its role link as one unit. A unique
// violation from a racing identical registration comes back as ErrDuplicate.
func (s *Store) CreateTeacher(ctx context.Context, user *models.User, roleID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserRole{UserID: user.ID, RoleID: roleID}).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// CreateStudentAccount inserts user, role link, and student row atomically.
func (s *Store) CreateStudentAccount(ctx context.Context, user *models.User, roleID string, student *models.Student) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.UserRole{UserID: user.ID, RoleID: roleID}).Error; err != nil {
			return err
		}
		student.UserID = user.ID
		return tx.Create(student).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) RecordLoginAttempt(ctx context.Context, entry *models.LoginLog) error {
	if entry.LoginTime.IsZero() {
		entry.LoginTime = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) LoginActivity(ctx context.Context, userID string, since time.Time) ([]models.LoginLog, error) {
	var logs []models.LoginLog
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND login_time >= ?", userID, since).
		Order("login_time DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
