package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/classtrack/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

func postJSON(t *testing.T, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestRegisterCreatesUserWithRoleLink(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(postJSON(t, "/api/v1/auth/register",
		`{"username":"newteacher","email":"nt@school.test","password":"secret1","mobile":"9990001"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var user models.User
	if err := env.db.First(&user, "username = ?", "newteacher").Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.Role != models.RoleTeacher || !user.IsActive {
		t.Fatalf("unexpected user: %+v", user)
	}
	var links int64
	env.db.Model(&models.UserRole{}).Where("user_id = ?", user.ID).Count(&links)
	if links != 1 {
		t.Fatalf("expected exactly one role link, got %d", links)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "taken", "secret1", models.RoleTeacher, true)

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/register",
		`{"username":"taken","email":"fresh@school.test","password":"secret1","mobile":"9990002"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "VAL_002") {
		t.Fatalf("expected duplicate code in body: %s", body)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/register",
		`{"username":"ab","email":"not-an-email","password":"123","mobile":"abc"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLoginEnumerationResistance(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "rightpass", models.RoleTeacher, true)

	respUnknown, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"nobody","password":"whatever"}`))
	respWrongPw, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"alice","password":"wrongpass"}`))

	if respUnknown.StatusCode != http.StatusUnauthorized || respWrongPw.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", respUnknown.StatusCode, respWrongPw.StatusCode)
	}

	bodyUnknown := readBody(t, respUnknown)
	bodyWrongPw := readBody(t, respWrongPw)
	if bodyUnknown != bodyWrongPw {
		t.Fatalf("responses must be indistinguishable:\n%s\n%s", bodyUnknown, bodyWrongPw)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "gone", "secret1", models.RoleTeacher, false)

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"gone","password":"secret1"}`))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(readBody(t, resp), "deactivated") {
		t.Fatal("expected deactivation message")
	}
}

func TestLoginWritesOneLogRowPerAttempt(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "audited", "secret1", models.RoleTeacher, true)

	attempts := []string{
		`{"username":"ghost","password":"x1234567"}`,   // unknown user
		`{"username":"audited","password":"wrong123"}`, // wrong password
		`{"username":"audited","password":"secret1"}`,  // success
	}
	for _, body := range attempts {
		if _, err := env.app.Test(postJSON(t, "/api/v1/auth/login", body)); err != nil {
			t.Fatalf("request: %v", err)
		}
	}

	var logs []models.LoginLog
	if err := env.db.Order("login_time").Find(&logs).Error; err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 log rows, got %d", len(logs))
	}
	if logs[0].UserID != nil {
		t.Fatal("unknown-user attempt must log a null user id")
	}
	if logs[1].UserID == nil || logs[1].Status != models.LoginStatusFailure {
		t.Fatalf("wrong-password attempt logged badly: %+v", logs[1])
	}
	if logs[2].Status != models.LoginStatusSuccess {
		t.Fatalf("success attempt logged badly: %+v", logs[2])
	}
}

func TestLoginTokenCarriesPermissionUnion(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "multi", "secret1", models.RoleTeacher, true)

	// Second role with overlapping permissions: {manage_students} from
	// teacher, {manage_students, manage_users} from admin.
	admin := &models.Role{Name: "admin"}
	if err := env.db.Create(admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	for _, name := range []string{models.PermissionManageStudents, models.PermissionManageUsers} {
		var perm models.Permission
		if err := env.db.Where(models.Permission{Name: name}).FirstOrCreate(&perm).Error; err != nil {
			t.Fatalf("perm %s: %v", name, err)
		}
		if err := env.db.Create(&models.RolePermission{RoleID: admin.ID, PermissionID: perm.ID}).Error; err != nil {
			t.Fatalf("link perm: %v", err)
		}
	}
	if err := env.db.Create(&models.UserRole{UserID: user.ID, RoleID: admin.ID}).Error; err != nil {
		t.Fatalf("link role: %v", err)
	}

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"multi","password":"secret1"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var out models.LoginResponse
	if err := json.Unmarshal([]byte(readBody(t, resp)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	claims := &models.Claims{}
	if _, err := jwt.ParseWithClaims(out.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}); err != nil {
		t.Fatalf("parse token: %v", err)
	}

	want := map[string]bool{models.PermissionManageStudents: false, models.PermissionManageUsers: false}
	for _, p := range claims.Permissions {
		if _, ok := want[p]; !ok {
			t.Fatalf("unexpected permission %q", p)
		}
		if want[p] {
			t.Fatalf("permission %q duplicated in token", p)
		}
		want[p] = true
	}
	for p, seen := range want {
		if !seen {
			t.Fatalf("permission %q missing from token", p)
		}
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected 2 roles in token, got %v", claims.Roles)
	}
}

func TestLoginEnrichesStudentProfileWithoutTokenPII(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "pupil", "secret1", models.RoleStudent, true)

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"pupil","password":"secret1"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	var out models.LoginResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.StudentID == "" || out.User.FirstName != "Firstpupil" {
		t.Fatalf("student enrichment missing: %+v", out.User)
	}

	// Names belong to the response payload only, never the signed token.
	if strings.Contains(out.Token, "Firstpupil") {
		t.Fatal("token must not embed student names")
	}
}

func TestStaleTokenOutlivesDeactivation(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "stale", "secret1", models.RoleTeacher, true)

	resp, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"stale","password":"secret1"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d", resp.StatusCode)
	}
	var out models.LoginResponse
	if err := json.Unmarshal([]byte(readBody(t, resp)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if err := env.db.Model(&models.User{}).Where("username = ?", "stale").Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// The unexpired token still passes verification; there is no
	// server-side revocation.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/teachers/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	gated, _ := env.app.Test(req)
	if gated.StatusCode != http.StatusOK {
		t.Fatalf("expected stale token accepted, got %d", gated.StatusCode)
	}

	// A fresh login is refused.
	relogin, _ := env.app.Test(postJSON(t, "/api/v1/auth/login",
		`{"username":"stale","password":"secret1"}`))
	if relogin.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected re-login rejected, got %d", relogin.StatusCode)
	}
	if !strings.Contains(readBody(t, relogin), "deactivated") {
		t.Fatal("expected deactivation message on re-login")
	}
}
