package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/classtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims models.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func testClaims(ttl time.Duration, permissions ...string) models.Claims {
	return models.Claims{
		UserID:      "u1",
		Username:    "alice",
		Role:        models.RoleTeacher,
		Roles:       []string{models.RoleTeacher},
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
}

func gateApp(required string) *fiber.App {
	m := NewAuthMiddleware(testSecret)
	app := fiber.New()
	app.Get("/gated", m.Authenticate(), m.RequirePermission(required), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/role-gated", m.Authenticate(), m.RequireRole(models.RoleTeacher), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAuthenticateMissingToken(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	req := httptest.NewRequest("GET", "/gated", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	req := httptest.NewRequest("GET", "/gated", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticateInvalidSignature(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	token := signToken(t, "wrong-secret", testClaims(time.Hour, models.PermissionManageStudents))
	req := httptest.NewRequest("GET", "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	token := signToken(t, testSecret, testClaims(-time.Hour, models.PermissionManageStudents))
	req := httptest.NewRequest("GET", "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for expired token, got %d", resp.StatusCode)
	}
}

func TestRequirePermission(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	// Missing permission.
	token := signToken(t, testSecret, testClaims(time.Hour, "view_grades"))
	req := httptest.NewRequest("GET", "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	// Permission present.
	token = signToken(t, testSecret, testClaims(time.Hour, "view_grades", models.PermissionManageStudents))
	req = httptest.NewRequest("GET", "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequireRoleLegacyGate(t *testing.T) {
	app := gateApp(models.PermissionManageStudents)

	claims := testClaims(time.Hour)
	claims.Role = models.RoleStudent
	token := signToken(t, testSecret, claims)
	req := httptest.NewRequest("GET", "/role-gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for student role, got %d", resp.StatusCode)
	}

	token = signToken(t, testSecret, testClaims(time.Hour))
	req = httptest.NewRequest("GET", "/role-gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for teacher role, got %d", resp.StatusCode)
	}
}
