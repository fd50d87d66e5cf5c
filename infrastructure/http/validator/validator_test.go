package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("new.hire@example.com"))
	assert.True(t, ValidateEmail(" new.hire@example.com "))

	for _, email := range []string{"", "plain", "Ada <ada@example.com>", "a@b", "a@example.com, b@example.com"} {
		assert.False(t, ValidateEmail(email), email)
	}
}

func TestValidateRequired(t *testing.T) {
	assert.True(t, ValidateRequired("welcome"))
	assert.False(t, ValidateRequired(""))
	assert.False(t, ValidateRequired(" \t"))
}

func TestValidateIdempotencyKey(t *testing.T) {
	assert.True(t, ValidateIdempotencyKey(""))
	assert.True(t, ValidateIdempotencyKey("welcome-42:v1"))
	assert.False(t, ValidateIdempotencyKey("has space"))
	assert.False(t, ValidateIdempotencyKey("tab\tkey"))
	assert.False(t, ValidateIdempotencyKey("ключ"))
	assert.False(t, ValidateIdempotencyKey(strings.Repeat("k", 129)))
}
