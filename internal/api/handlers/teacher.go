package handlers

import (
	"bufio"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/middleware"
	"github.com/classtrack/backend/internal/models"
	"github.com/classtrack/backend/internal/roster"
	"github.com/classtrack/backend/internal/storage"
	"github.com/classtrack/backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type TeacherHandler struct {
	storage    storage.Storage
	importer   *roster.Importer
	bcryptCost int
	uploadDir  string
}

func NewTeacherHandler(storage storage.Storage, bcryptCost int, uploadDir string) *TeacherHandler {
	return &TeacherHandler{
		storage:    storage,
		importer:   roster.NewImporter(storage, bcryptCost),
		bcryptCost: bcryptCost,
		uploadDir:  uploadDir,
	}
}

func (h *TeacherHandler) Dashboard(c *fiber.Ctx) error {
	today := time.Now().Format(models.DateLayout)
	stats, err := h.storage.DashboardStats(c.Context(), today)
	if err != nil {
		return apperr.Database("dashboard statistics", err)
	}
	return c.JSON(stats)
}

type ListStudentsRequest struct {
	Page        int    `query:"page" validate:"min=1"`
	Limit       int    `query:"limit" validate:"min=1,max=100"`
	FilterBy    string `query:"filterBy" validate:"omitempty,oneof=username email mobile first_name last_name is_active"`
	FilterValue string `query:"filterValue"`
	SortBy      string `query:"sortBy" validate:"omitempty,oneof=username email mobile first_name last_name"`
	SortOrder   string `query:"sortOrder" validate:"oneof=asc desc"`
}

func (h *TeacherHandler) ListStudents(c *fiber.Ctx) error {
	var req ListStudentsRequest
	if err := c.QueryParser(&req); err != nil {
		return apperr.Validation("Invalid query parameters")
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if req.SortOrder == "" {
		req.SortOrder = "asc"
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	records, total, err := h.storage.ListStudents(c.Context(), storage.ListStudentsParams{
		Page:        req.Page,
		Limit:       req.Limit,
		FilterBy:    req.FilterBy,
		FilterValue: req.FilterValue,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		return apperr.Database("student list retrieval", err)
	}

	totalPages := total / int64(req.Limit)
	if total%int64(req.Limit) > 0 {
		totalPages++
	}

	return c.JSON(fiber.Map{
		"students": records,
		"pagination": fiber.Map{
			"totalStudents": total,
			"currentPage":   req.Page,
			"perPage":       req.Limit,
			"totalPages":    totalPages,
		},
	})
}

type AddStudentRequest struct {
	Username    string  `json:"username" validate:"required,min=3"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=6"`
	Mobile      string  `json:"mobile" validate:"required,mobile"`
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     *string `json:"address"`
}

// AddStudent creates the user, its role link, and the student row in one
// transaction.
func (h *TeacherHandler) AddStudent(c *fiber.Ctx) error {
	var req AddStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	exists, err := h.storage.UserExists(c.Context(), req.Username, req.Email, req.Mobile, "")
	if err != nil {
		return apperr.Database("student uniqueness check", err)
	}
	if exists {
		return apperr.Duplicate("User", "this username, email, or mobile")
	}

	role, err := h.storage.GetRoleByName(c.Context(), models.RoleStudent)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return apperr.Configuration("Student role not found in database")
		}
		return apperr.Database("student role lookup", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		return apperr.Database("password hashing", err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: string(hash),
		Role:     models.RoleStudent,
		IsActive: true,
	}
	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
	}
	if err := h.storage.CreateStudentAccount(c.Context(), user, role.ID, student); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Duplicate("User", "this username, email, or mobile")
		}
		return apperr.Database("student creation", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student added successfully",
		"student": fiber.Map{
			"user_id":    user.ID,
			"student_id": student.ID,
			"username":   user.Username,
			"email":      user.Email,
			"mobile":     user.Mobile,
			"first_name": student.FirstName,
			"last_name":  student.LastName,
		},
	})
}

type EditStudentRequest struct {
	Username    *string `json:"username" validate:"omitempty,min=3"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Mobile      *string `json:"mobile" validate:"omitempty,mobile"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address     *string `json:"address"`
	IsActive    *bool   `json:"is_active"`
}

// EditStudent applies a partial update; only provided fields change.
func (h *TeacherHandler) EditStudent(c *fiber.Ctx) error {
	studentID := c.Params("id")

	var req EditStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	existing, err := h.storage.GetStudentRecord(c.Context(), studentID)
	if err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return apperr.NotFound("Student", studentID)
		}
		return apperr.Database("student lookup", err)
	}

	// Conflict check against everyone but this student's own user, using
	// the current values for anything not being changed.
	username, email, mobile := existing.Username, existing.Email, existing.Mobile
	if req.Username != nil {
		username = *req.Username
	}
	if req.Email != nil {
		email = *req.Email
	}
	if req.Mobile != nil {
		mobile = *req.Mobile
	}
	exists, err := h.storage.UserExists(c.Context(), username, email, mobile, existing.UserID)
	if err != nil {
		return apperr.Database("student uniqueness check", err)
	}
	if exists {
		return apperr.Duplicate("User", "this username, email, or mobile")
	}

	record, err := h.storage.UpdateStudent(c.Context(), studentID,
		storage.UserUpdate{
			Username: req.Username,
			Email:    req.Email,
			Mobile:   req.Mobile,
			IsActive: req.IsActive,
		},
		storage.StudentUpdate{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			DateOfBirth: req.DateOfBirth,
			Address:     req.Address,
		})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Duplicate("User", "this username, email, or mobile")
		}
		return apperr.Database("student update", err)
	}

	return c.JSON(fiber.Map{
		"message": "Student updated successfully",
		"student": record,
	})
}

func (h *TeacherHandler) DeactivateStudent(c *fiber.Ctx) error {
	studentID := c.Params("id")

	user, err := h.storage.DeactivateStudent(c.Context(), studentID)
	if err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return apperr.NotFound("Student", studentID)
		}
		return apperr.Database("student deactivation", err)
	}

	return c.JSON(fiber.Map{
		"message": "Student deactivated successfully",
		"user": fiber.Map{
			"id":        user.ID,
			"username":  user.Username,
			"email":     user.Email,
			"is_active": user.IsActive,
		},
	})
}

type MarkAttendanceRequest struct {
	IsPresent *bool `json:"is_present" validate:"required"`
}

// MarkAttendance upserts today's record for the student; marking the same
// day twice overwrites rather than duplicating.
func (h *TeacherHandler) MarkAttendance(c *fiber.Ctx) error {
	studentID := c.Params("id")

	var req MarkAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	if _, err := h.storage.GetStudentRecord(c.Context(), studentID); err != nil {
		if errors.Is(err, storage.ErrStudentNotFound) {
			return apperr.NotFound("Student", studentID)
		}
		return apperr.Database("student lookup", err)
	}

	today := time.Now().Format(models.DateLayout)
	entry, err := h.storage.UpsertAttendance(c.Context(), studentID, today, *req.IsPresent)
	if err != nil {
		return apperr.Database("attendance marking", err)
	}

	return c.JSON(fiber.Map{
		"message":    "Attendance marked successfully",
		"attendance": entry,
	})
}

type ListAttendanceRequest struct {
	Page      int    `query:"page" validate:"min=1"`
	Limit     int    `query:"limit" validate:"min=1,max=100"`
	StudentID string `query:"studentId"`
	StartDate string `query:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `query:"endDate" validate:"omitempty,datetime=2006-01-02"`
	IsPresent string `query:"isPresent" validate:"omitempty,oneof=true false"`
}

func (h *TeacherHandler) ListAttendance(c *fiber.Ctx) error {
	var req ListAttendanceRequest
	if err := c.QueryParser(&req); err != nil {
		return apperr.Validation("Invalid query parameters")
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	params := storage.ListAttendanceParams{
		Page:      req.Page,
		Limit:     req.Limit,
		StudentID: req.StudentID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.IsPresent != "" {
		present := req.IsPresent == "true"
		params.IsPresent = &present
	}

	records, total, err := h.storage.ListAttendance(c.Context(), params)
	if err != nil {
		return apperr.Database("attendance records retrieval", err)
	}

	totalPages := total / int64(req.Limit)
	if total%int64(req.Limit) > 0 {
		totalPages++
	}

	return c.JSON(fiber.Map{
		"attendanceRecords": records,
		"pagination": fiber.Map{
			"totalRecords": total,
			"currentPage":  req.Page,
			"perPage":      req.Limit,
			"totalPages":   totalPages,
		},
	})
}

// ImportStudents accepts a multipart CSV and runs the bulk pipeline. The
// temporary upload is removed on every path out of this handler.
func (h *TeacherHandler) ImportStudents(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("csvFile")
	if err != nil {
		return apperr.File("No CSV file uploaded")
	}
	if fileHeader.Header.Get("Content-Type") != "text/csv" {
		return apperr.File("Only CSV files are allowed")
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+".csv")
	if err := c.SaveFile(fileHeader, path); err != nil {
		return apperr.File("Failed to store uploaded file")
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			log.Printf("failed to remove upload %s: %v", path, err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return apperr.File("Failed to read uploaded file")
	}
	defer f.Close()

	result, err := h.importer.Import(c.Context(), f)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message":             "Students uploaded successfully",
		"newStudentsCount":    len(result.Created),
		"duplicateUsersCount": len(result.Rejected),
		"newStudents":         result.Created,
		"duplicateUsers":      result.Rejected,
	})
}

type ExportStudentsRequest struct {
	FilterBy    string `query:"filterBy"`
	FilterValue string `query:"filterValue"`
}

// ExportStudents streams the filtered roster as CSV. Rows are produced as
// the body is consumed, so the result set is never held in memory.
func (h *TeacherHandler) ExportStudents(c *fiber.Ctx) error {
	var req ExportStudentsRequest
	if err := c.QueryParser(&req); err != nil {
		return apperr.Validation("Invalid query parameters")
	}
	if req.FilterBy != "" && !roster.ExportFilterAllowed(req.FilterBy) {
		return apperr.Validation("Unsupported filter column")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="students.csv"`)

	store := h.storage
	filterBy, filterValue := req.FilterBy, req.FilterValue
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The request context is gone by the time the body streams.
		if err := roster.WriteCSV(context.Background(), store, filterBy, filterValue, w); err != nil {
			log.Printf("student export aborted: %v", err)
		}
	})
	return nil
}

// LoginActivity returns the caller's own login-log rows from the last three
// days.
func (h *TeacherHandler) LoginActivity(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return apperr.Authentication("Access denied. No token provided.")
	}

	since := time.Now().AddDate(0, 0, -3)
	logs, err := h.storage.LoginActivity(c.Context(), claims.UserID, since)
	if err != nil {
		return apperr.Database("teacher login activity retrieval", err)
	}

	return c.JSON(fiber.Map{
		"login_activity": logs,
	})
}
