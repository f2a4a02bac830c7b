package handlers

import (
	"errors"
	"time"

	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/middleware"
	"github.com/classtrack/backend/internal/models"
	"github.com/classtrack/backend/internal/storage"
	"github.com/classtrack/backend/internal/validation"
	"github.com/gofiber/fiber/v2"
)

type StudentHandler struct {
	storage storage.Storage
}

func NewStudentHandler(storage storage.Storage) *StudentHandler {
	return &StudentHandler{
		storage: storage,
	}
}

// student resolves the caller's own student row from the token identity.
func (h *StudentHandler) student(c *fiber.Ctx) (*models.Student, error) {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return nil, apperr.Authentication("Access denied. No token provided.")
	}
	student, err := h.storage.GetStudentByUserID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return nil, apperr.NotFound("Student", claims.UserID)
		}
		return nil, apperr.Database("student lookup", err)
	}
	return student, nil
}

// Profile returns the joined student+user view with the overall attendance
// counts.
func (h *StudentHandler) Profile(c *fiber.Ctx) error {
	student, err := h.student(c)
	if err != nil {
		return err
	}

	record, err := h.storage.GetStudentRecord(c.Context(), student.ID)
	if err != nil {
		return apperr.Database("student profile retrieval", err)
	}

	present, absent, err := h.storage.AttendanceStats(c.Context(), student.ID)
	if err != nil {
		return apperr.Database("attendance stats retrieval", err)
	}

	return c.JSON(fiber.Map{
		"student":      record,
		"present_days": present,
		"absent_days":  absent,
	})
}

type EditProfileRequest struct {
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     *string `json:"address"`
}

func (h *StudentHandler) EditProfile(c *fiber.Ctx) error {
	student, err := h.student(c)
	if err != nil {
		return err
	}

	var req EditProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	record, err := h.storage.UpdateStudent(c.Context(), student.ID,
		storage.UserUpdate{},
		storage.StudentUpdate{
			FirstName:   &req.FirstName,
			LastName:    &req.LastName,
			DateOfBirth: req.DateOfBirth,
			Address:     req.Address,
		})
	if err != nil {
		return apperr.Database("student profile update", err)
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"student": record,
	})
}

func (h *StudentHandler) TodayAttendance(c *fiber.Ctx) error {
	student, err := h.student(c)
	if err != nil {
		return err
	}

	today := time.Now().Format(models.DateLayout)
	entry, err := h.storage.GetAttendanceForDate(c.Context(), student.ID, today)
	if err != nil {
		return apperr.Database("attendance retrieval", err)
	}

	return c.JSON(fiber.Map{
		"today_attendance": entry,
	})
}

func (h *StudentHandler) LoginActivity(c *fiber.Ctx) error {
	student, err := h.student(c)
	if err != nil {
		return err
	}

	since := time.Now().AddDate(0, 0, -3)
	logs, err := h.storage.LoginActivity(c.Context(), student.UserID, since)
	if err != nil {
		return apperr.Database("login activity retrieval", err)
	}

	return c.JSON(fiber.Map{
		"login_activity": logs,
		"total_count":    len(logs),
		"period":         "last_3_days",
	})
}
