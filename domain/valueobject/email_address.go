package valueobject

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail = errors.New("invalid email format")

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// EmailAddress is a trimmed, lower-cased recipient address. It doubles as
// the partition key for notifications.
type EmailAddress struct {
	value string
}

func NewEmailAddress(raw string) (EmailAddress, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if !emailRegex.MatchString(normalized) {
		return EmailAddress{}, ErrInvalidEmail
	}
	return EmailAddress{value: normalized}, nil
}

func (e EmailAddress) String() string {
	return e.value
}
