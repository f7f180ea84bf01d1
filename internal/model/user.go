package model

import (
	"strings"
	"unicode/utf8"
)

// User is an authenticated account of the identity service.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
}

// Registration holds the fields of a new account.
type Registration struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// ProfileUpdate holds mutable profile fields.
type ProfileUpdate struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks that a password meets the minimum length.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return NewValidationError("password", "minimum length is 8")
	}
	return nil
}

// ValidateRegistration checks a new account's fields.
func ValidateRegistration(r Registration) error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return ValidatePassword(r.Password)
}

// ValidateProfileUpdate checks a profile update.
func ValidateProfileUpdate(p ProfileUpdate) error {
	return validateStruct(p)
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
