// Package api defines the wire messages and service descriptor of the auth
// gRPC service. Messages are plain structs encoded with a JSON codec.
package api

import "time"

type Empty struct{}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by Login and Refresh.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RequestResetRequest struct {
	Email string `json:"email"`
}

// RequestResetResponse is identical whether or not the email is known.
type RequestResetResponse struct {
	Message string `json:"message"`
}

type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// AuthorizeRequest checks Permissions for UserID, or for the caller when empty.
type AuthorizeRequest struct {
	UserID      string   `json:"user_id,omitempty"`
	Permissions []string `json:"permissions"`
}

type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Group       string    `json:"group,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreatePermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Group       string `json:"group,omitempty"`
}

type ListPermissionsRequest struct {
	Group string `json:"group,omitempty"`
}

type ListPermissionsResponse struct {
	Permissions []Permission `json:"permissions"`
}

type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type ListRolesResponse struct {
	Roles []Role `json:"roles"`
}

// RolePermissionsRequest adds or removes Permissions on RoleID.
type RolePermissionsRequest struct {
	RoleID      string   `json:"role_id"`
	Permissions []string `json:"permissions"`
}

type Assignment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy string     `json:"granted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AssignRoleRequest struct {
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RemoveRoleRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type EffectivePermissionsRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type EffectivePermissionsResponse struct {
	Permissions []string `json:"permissions"`
}
