package router

import (
	"time"

	"github.com/classtrack/backend/internal/api/handlers"
	"github.com/classtrack/backend/internal/middleware"
	"github.com/classtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type Router struct {
	app            *fiber.App
	authHandler    *handlers.AuthHandler
	teacherHandler *handlers.TeacherHandler
	studentHandler *handlers.StudentHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
}

func NewRouter(
	app *fiber.App,
	authHandler *handlers.AuthHandler,
	teacherHandler *handlers.TeacherHandler,
	studentHandler *handlers.StudentHandler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
) *Router {
	return &Router{
		app:            app,
		authHandler:    authHandler,
		teacherHandler: teacherHandler,
		studentHandler: studentHandler,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
	}
}

func (r *Router) SetupRoutes() {
	// Public routes
	auth := r.app.Group("/api/v1/auth")
	auth.Post("/register", r.authHandler.Register)
	auth.Post("/login", r.rateLimiter.RateLimit(middleware.RateLimitConfig{
		Enabled: true,
		Limit:   5,
		Window:  time.Minute,
	}), r.authHandler.Login)

	// Teacher surface: permission-gated, except the legacy role gate on the
	// dashboard.
	teachers := r.app.Group("/api/v1/teachers", r.authMiddleware.Authenticate())
	teachers.Get("/dashboard", r.authMiddleware.RequireRole(models.RoleTeacher), r.teacherHandler.Dashboard)
	teachers.Get("/students", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.ListStudents)
	teachers.Post("/students", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.AddStudent)
	teachers.Put("/students/:id", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.EditStudent)
	teachers.Put("/students/:id/deactivate", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.DeactivateStudent)
	teachers.Post("/students/:id/attendance", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.MarkAttendance)
	teachers.Post("/students/upload", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.ImportStudents)
	teachers.Get("/students/download", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.ExportStudents)
	teachers.Get("/attendance", r.authMiddleware.RequirePermission(models.PermissionManageStudents), r.teacherHandler.ListAttendance)
	teachers.Get("/login-activity", r.authMiddleware.RequireRole(models.RoleTeacher), r.teacherHandler.LoginActivity)

	// Student surface: token identity only, no extra permission.
	student := r.app.Group("/api/v1/student", r.authMiddleware.Authenticate())
	student.Get("/profile", r.studentHandler.Profile)
	student.Put("/profile", r.studentHandler.EditProfile)
	student.Get("/attendance/today", r.studentHandler.TodayAttendance)
	student.Get("/login-activity", r.studentHandler.LoginActivity)
}
