package models

import "time"

// User is a local account. Accounts are provisioned on first SSO login.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	Role         string
	IsSuperuser  bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}
