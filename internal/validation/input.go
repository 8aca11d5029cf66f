package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field bounds enforced at the input boundary.
const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxCoverLetterLength = 2000
	MaxReasonLength      = 2000
	MaxDecisionLength    = 5000
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateLength checks a string's rune length against bounds.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters", fieldName, max)
	}
	return nil
}

// ValidateEmail checks email format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}
