package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleClerk Role = "clerk"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClerk
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
