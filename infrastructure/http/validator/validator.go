package validator

import (
	"net/mail"
	"strings"

	"github.com/onboarding/onboarding-service/domain/valueobject"
)

// ValidateEmail accepts a single bare address, no display name.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	_, err = valueobject.NewEmailAddress(email)
	return err == nil
}

func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidateIdempotencyKey allows an empty key; a present one must be short
// printable ASCII so it survives as a Kafka header and a Redis key.
func ValidateIdempotencyKey(key string) bool {
	if len(key) > 128 {
		return false
	}
	for _, r := range key {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}
