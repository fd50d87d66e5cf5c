package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailNotification is the payload published for the mail sender. Rendering
// the template is the consumer's job.
type EmailNotification struct {
	ID        string                 `json:"id"`
	Email     string                 `json:"email"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewEmailNotification(email, subject, template string, data map[string]interface{}) *EmailNotification {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &EmailNotification{
		ID:        uuid.NewString(),
		Email:     email,
		Subject:   subject,
		Template:  template,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// ContentFingerprint hashes what the recipient will see. ID and CreatedAt
// are left out so a resend of the same email matches the first one.
func (n *EmailNotification) ContentFingerprint() string {
	data, _ := json.Marshal(n.Data)
	sum := sha256.Sum256([]byte(n.Email + "\x00" + n.Subject + "\x00" + n.Template + "\x00" + string(data)))
	return hex.EncodeToString(sum[:])
}
