package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestAsUnwrapsWrappedError(t *testing.T) {
	inner := Duplicate("User", "this username")
	wrapped := fmt.Errorf("create account: %w", inner)

	e, ok := As(wrapped)
	if !ok {
		t.Fatal("expected *Error in chain")
	}
	if e.Code != "VAL_002" || e.Status != fiber.StatusConflict {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestDatabaseErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	e := Database("user lookup", cause)

	if !errors.Is(e, cause) {
		t.Fatal("cause lost through Unwrap")
	}
	if !strings.Contains(e.Error(), "connection reset") {
		t.Fatalf("cause missing from message: %q", e.Error())
	}
}

func testApp(h fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/x", h)
	return app
}

func body(t *testing.T, app *fiber.App) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp.StatusCode, string(b)
}

func TestErrorHandlerRendersOperationalError(t *testing.T) {
	app := testApp(func(c *fiber.Ctx) error {
		return Validation("Invalid request body")
	})

	status, out := body(t, app)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if !strings.Contains(out, `"code":"VAL_001"`) || !strings.Contains(out, "Invalid request body") {
		t.Fatalf("unexpected body: %s", out)
	}
}

func TestErrorHandlerMasksInternalDetail(t *testing.T) {
	app := testApp(func(c *fiber.Ctx) error {
		return errors.New("pq: relation users does not exist")
	})

	status, out := body(t, app)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(out, "relation") {
		t.Fatalf("driver detail leaked: %s", out)
	}
	if !strings.Contains(out, "SERVER_001") {
		t.Fatalf("expected generic code: %s", out)
	}
}

func TestErrorHandlerMasksDatabaseCause(t *testing.T) {
	app := testApp(func(c *fiber.Ctx) error {
		return Database("student lookup", errors.New("dial tcp: refused"))
	})

	status, out := body(t, app)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(out, "dial tcp") {
		t.Fatalf("cause leaked to client: %s", out)
	}
	if !strings.Contains(out, "student lookup") {
		t.Fatalf("operation name missing: %s", out)
	}
}
