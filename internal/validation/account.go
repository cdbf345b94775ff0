package validation

import (
	"strings"

	"github.com/sakif/learnmade/internal/apperror"
)

// MaxPasswordBytes is bcrypt's input limit; longer passwords would be silently truncated.
const MaxPasswordBytes = 72

// SubscribeInput is the public subscribe form.
// ConfirmEmail is the honeypot: a hidden field real visitors never fill in.
type SubscribeInput struct {
	Email        string `json:"email" validate:"required,email"`
	ConfirmEmail string `json:"confirm_email_address"`
}

// IsSpam reports whether the honeypot was filled.
func (in SubscribeInput) IsSpam() bool {
	return strings.TrimSpace(in.ConfirmEmail) != ""
}

// NormalizeEmail lowercases and trims, the canonical form stored for users and subscribers.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalises email and checks its format.
func ValidateEmail(email string) (string, error) {
	in := SubscribeInput{Email: NormalizeEmail(email)}
	if err := Check(in); err != nil {
		return "", apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	return in.Email, nil
}

// SignupInput is the email + password registration payload.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ValidateSignup returns the normalised email or every field error found.
func ValidateSignup(in SignupInput) (SignupInput, error) {
	in.Email = NormalizeEmail(in.Email)
	var details []apperror.FieldError

	if err := Check(in); err != nil {
		for _, d := range apperror.DetailsOf(err) {
			if d.Field == "password" {
				d.Message = "Password must be at least 6 characters"
			}
			details = append(details, d)
		}
	}
	if len(in.Password) > MaxPasswordBytes {
		details = append(details, apperror.FieldError{
			Field:   "password",
			Message: "Password must be 72 bytes or fewer",
		})
	}
	if len(details) > 0 {
		return in, apperror.Invalid(details)
	}
	return in, nil
}
