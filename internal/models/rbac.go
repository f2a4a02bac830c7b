package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PermissionManageStudents = "manage_students"
	PermissionManageUsers    = "manage_users"
)

// Role is a named permission bundle. Reference data, seeded at setup time;
// request flow only ever reads it.
type Role struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;uniqueIndex"`
}

func (Role) TableName() string {
	return "roles"
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Permission is a named capability. Reference data.
type Permission struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;uniqueIndex"`
}

func (Permission) TableName() string {
	return "permissions"
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type RolePermission struct {
	RoleID       string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

type UserRole struct {
	UserID string `gorm:"primaryKey"`
	RoleID string `gorm:"primaryKey"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// RoleGrant is one (role, permission) row from the closure join. Permission
// is empty when a role has no permissions at all (left join).
type RoleGrant struct {
	RoleID         string
	RoleName       string
	PermissionName string
}
