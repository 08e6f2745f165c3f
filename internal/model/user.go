package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole distinguishes the three account types plus the internal
// system actor used by schedulers.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"

	// RoleSystem is never stored; it identifies internal callers such as
	// the session timer worker when force-submitting expired attempts.
	RoleSystem UserRole = "SYSTEM"
)

// User represents any account: admin, teacher, or student.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is the verified identity attached to every use-case call.
// It comes from the JWT middleware for network callers and is built
// directly by in-process callers (workers).
type Actor struct {
	ID   uuid.UUID
	Role UserRole
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LoginResponse is returned after successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
