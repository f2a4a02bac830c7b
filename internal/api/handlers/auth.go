package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/models"
	"github.com/classtrack/backend/internal/storage"
	"github.com/classtrack/backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	storage     storage.Storage
	jwtSecret   string
	jwtDuration time.Duration
	bcryptCost  int
}

func NewAuthHandler(storage storage.Storage, jwtSecret string, jwtDuration time.Duration, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		storage:     storage,
		jwtSecret:   jwtSecret,
		jwtDuration: jwtDuration,
		bcryptCost:  bcryptCost,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Mobile   string `json:"mobile" validate:"required,mobile"`
}

// Register handles teacher self-registration. The user row and its role
// link are created as one unit; neither can exist without the other.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	exists, err := h.storage.UserExists(c.Context(), req.Username, req.Email, req.Mobile, "")
	if err != nil {
		return apperr.Database("registration uniqueness check", err)
	}
	if exists {
		return apperr.Duplicate("User", "this username, email, or mobile")
	}

	role, err := h.storage.GetRoleByName(c.Context(), models.RoleTeacher)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return apperr.Configuration("Teacher role not found in database")
		}
		return apperr.Database("teacher role lookup", err)
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
		Role:     models.RoleTeacher,
		IsActive: true,
	}
	if err := h.storage.CreateTeacher(c.Context(), user, role.ID); err != nil {
		// A racing identical registration loses the unique index race here.
		if errors.Is(err, storage.ErrDuplicate) {
			return apperr.Duplicate("User", "this username, email, or mobile")
		}
		return apperr.Database("teacher registration", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Teacher registered successfully",
		"user":    user,
	})
}

// Login verifies credentials and issues the signed claim bundle. Exactly one
// login-log row is written per attempt, success or failure, and a log write
// failure never changes the outcome.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := validation.ValidateStruct(req); err != nil {
		return apperr.Validation(err.Error())
	}

	user, err := h.storage.GetUserByUsername(c.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Same response as a wrong password, so usernames cannot be
			// enumerated.
			h.logAttempt(c, nil, models.LoginStatusFailure)
			return apperr.Authentication("Invalid credentials")
		}
		return apperr.Database("user lookup", err)
	}

	if !user.IsActive {
		h.logAttempt(c, &user.ID, models.LoginStatusFailure)
		return apperr.Authentication("Account is deactivated. Please contact support.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.logAttempt(c, &user.ID, models.LoginStatusFailure)
		return apperr.Authentication("Invalid credentials")
	}

	h.logAttempt(c, &user.ID, models.LoginStatusSuccess)

	grants, err := h.storage.GetUserAuthClosure(c.Context(), user.ID)
	if err != nil {
		return apperr.Database("permission closure lookup", err)
	}
	roles, permissions := foldGrants(grants)

	token, err := h.generateToken(user, roles, permissions)
	if err != nil {
		return apperr.Database("token signing", err)
	}

	profile := models.LoginProfile{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		Roles:       roles,
		Permissions: permissions,
	}
	if user.Role == models.RoleStudent {
		student, err := h.storage.GetStudentByUserID(c.Context(), user.ID)
		if err == nil {
			profile.StudentID = student.ID
			profile.FirstName = student.FirstName
			profile.LastName = student.LastName
		} else if !errors.Is(err, storage.ErrStudentNotFound) {
			return apperr.Database("student profile lookup", err)
		}
	}

	return c.JSON(models.LoginResponse{
		Token: token,
		User:  profile,
	})
}

// foldGrants collapses the (role, permission) join rows into deduplicated
// roles and the flat permission-name union across all of them.
func foldGrants(grants []models.RoleGrant) ([]models.RoleInfo, []string) {
	roles := []models.RoleInfo{}
	roleIndex := map[string]int{}
	permissions := []string{}
	permSeen := map[string]bool{}

	for _, g := range grants {
		i, ok := roleIndex[g.RoleID]
		if !ok {
			roles = append(roles, models.RoleInfo{ID: g.RoleID, Name: g.RoleName, Permissions: []string{}})
			i = len(roles) - 1
			roleIndex[g.RoleID] = i
		}
		if g.PermissionName == "" {
			continue
		}
		if !contains(roles[i].Permissions, g.PermissionName) {
			roles[i].Permissions = append(roles[i].Permissions, g.PermissionName)
		}
		if !permSeen[g.PermissionName] {
			permSeen[g.PermissionName] = true
			permissions = append(permissions, g.PermissionName)
		}
	}
	return roles, permissions
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (h *AuthHandler) generateToken(user *models.User, roles []models.RoleInfo, permissions []string) (string, error) {
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}

	claims := models.Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Roles:       roleNames,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.jwtDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}

// logAttempt writes the audit row best-effort: failures go to the process
// log and are never propagated to the caller.
func (h *AuthHandler) logAttempt(c *fiber.Ctx, userID *string, status string) {
	entry := &models.LoginLog{
		UserID:    userID,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
		Status:    status,
		LoginTime: time.Now().UTC(),
	}
	if err := h.storage.RecordLoginAttempt(c.Context(), entry); err != nil {
		log.Printf("failed to record login attempt: %v", err)
	}
}
