package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/taskora/taskora/backend/internal/api"
)

const (
	// MinPasswordLength is the minimum allowed password length
	MinPasswordLength = 8
	// MaxPasswordLength is the maximum allowed password length
	MaxPasswordLength = 16
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// Password pattern error codes, surfaced as field-level validation messages.
const (
	CodePasswordLength        = "PASSWORD_LENGTH_MUST_BE_BETWEEN_8_AND_16_CHARACTERS"
	CodePasswordNoUppercase   = "PASSWORD_MUST_CONTAIN_AN_UPPERCASE_LETTER"
	CodePasswordNoLowercase   = "PASSWORD_MUST_CONTAIN_A_LOWERCASE_LETTER"
	CodePasswordNoDigit       = "PASSWORD_MUST_CONTAIN_A_DIGIT"
	CodePasswordNoSpecial     = "PASSWORD_MUST_CONTAIN_A_SPECIAL_CHARACTER"
	CodePasswordHasWhitespace = "PASSWORD_MUST_NOT_CONTAIN_WHITESPACE"
)

// PasswordValidator handles password pattern validation and hashing
type PasswordValidator struct{}

// NewPasswordValidator creates a new PasswordValidator instance
func NewPasswordValidator() *PasswordValidator {
	return &PasswordValidator{}
}

// ValidatePassword checks the password against the pattern rules: length
// 8-16, at least one uppercase, lowercase, digit, and special character, no
// whitespace. Returns field-level errors; empty means valid.
func (v *PasswordValidator) ValidatePassword(field, password string) []api.FieldError {
	var errs []api.FieldError

	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordLength})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial, hasSpace bool

	for _, char := range password {
		switch {
		case unicode.IsSpace(char):
			hasSpace = true
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordNoUppercase})
	}
	if !hasLower {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordNoLowercase})
	}
	if !hasDigit {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordNoDigit})
	}
	if !hasSpecial {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordNoSpecial})
	}
	if hasSpace {
		errs = append(errs, api.FieldError{Field: field, Message: CodePasswordHasWhitespace})
	}

	return errs
}

// HashPassword creates a bcrypt hash of the password
func (v *PasswordValidator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its bcrypt hash.
// Returns nil if they match, error otherwise.
func (v *PasswordValidator) VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
