package auth

import (
	"strings"

	"github.com/google/uuid"
)

// User is an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserIDForEmail derives a stable account id from an email address.
func UserIDForEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+normalized)).String()
}
