package handlers_test

import (
	"testing"
	"time"

	"github.com/classtrack/backend/internal/api/handlers"
	"github.com/classtrack/backend/internal/api/router"
	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/middleware"
	"github.com/classtrack/backend/internal/models"
	"github.com/classtrack/backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

type testEnv struct {
	app   *fiber.App
	store *storage.Store
	db    *gorm.DB
}

// newTestEnv wires the real router against an in-memory database with the
// reference roles seeded: teacher carries manage_students, student carries
// nothing.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := storage.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	teacherRole := &models.Role{Name: models.RoleTeacher}
	studentRole := &models.Role{Name: models.RoleStudent}
	manage := &models.Permission{Name: models.PermissionManageStudents}
	for _, m := range []interface{}{teacherRole, studentRole, manage} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Create(&models.RolePermission{RoleID: teacherRole.ID, PermissionID: manage.ID}).Error; err != nil {
		t.Fatalf("seed role permission: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	authHandler := handlers.NewAuthHandler(store, testSecret, time.Hour, bcrypt.MinCost)
	teacherHandler := handlers.NewTeacherHandler(store, bcrypt.MinCost, t.TempDir())
	studentHandler := handlers.NewStudentHandler(store)
	authMiddleware := middleware.NewAuthMiddleware(testSecret)
	// Limiter off so multi-attempt login tests are not throttled; see
	// middleware/rate_limiter_test.go for the throttle behavior itself.
	rateLimiter := middleware.NewRateLimiter(middleware.NewMemoryAttempts(), false)

	router.NewRouter(app, authHandler, teacherHandler, studentHandler, authMiddleware, rateLimiter).SetupRoutes()

	return &testEnv{app: app, store: store, db: db}
}

// createUser inserts a user with its role link (and student row for
// students) directly through the store.
func (e *testEnv) createUser(t *testing.T, username, password, roleName string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	var role models.Role
	if err := e.db.First(&role, "name = ?", roleName).Error; err != nil {
		t.Fatalf("role %s: %v", roleName, err)
	}
	user := &models.User{
		Username: username,
		Email:    username + "@school.test",
		Mobile:   "77" + username,
		Password: string(hash),
		Role:     roleName,
		IsActive: active,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !active {
		// gorm replaces a zero-valued IsActive with the column's
		// default:true on insert, so deactivation needs an explicit update.
		if err := e.db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate user: %v", err)
		}
	}
	if err := e.db.Create(&models.UserRole{UserID: user.ID, RoleID: role.ID}).Error; err != nil {
		t.Fatalf("link role: %v", err)
	}
	if roleName == models.RoleStudent {
		student := &models.Student{UserID: user.ID, FirstName: "First" + username, LastName: "Last" + username}
		if err := e.db.Create(student).Error; err != nil {
			t.Fatalf("create student: %v", err)
		}
	}
	return user
}

// signToken signs a token the way the login handler does, for tests that
// exercise gated routes without going through login.
func (e *testEnv) signToken(t *testing.T, user *models.User, permissions ...string) string {
	t.Helper()
	claims := models.Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Roles:       []string{user.Role},
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}
