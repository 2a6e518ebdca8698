package models

// Role is a capability granted to a user; it doubles as a token scope
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a user in the system
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Not serialized
	Roles        []Role `json:"roles"`
}
