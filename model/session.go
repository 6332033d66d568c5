package model

import "strings"

// Roles recognised in the Login sheet
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Session identifies the caller of an operation. It is built from a
// validated token at the HTTP boundary and passed explicitly downstream.
type Session struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the session may perform admin-only operations.
func (s *Session) IsAdmin() bool {
	return s != nil && strings.EqualFold(s.Role, RoleAdmin)
}
