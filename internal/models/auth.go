package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials. Either Email or LoginID identifies the
// account.
type LoginRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	LoginID   string `json:"loginId" validate:"omitempty,max=64"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int64     `json:"expiresIn"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Role      UserRole `json:"role"`
	FacultyID string   `json:"facultyId,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID    string   `json:"uid"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	FacultyID string   `json:"fid,omitempty"`
	jwt.RegisteredClaims
}
