package subscription

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

const (
	maxEmailLength = 254
	maxLocalLength = 64
)

// ValidateEmail accepts a bare RFC 5322 address ("user@example.com") whose
// domain is a valid, dotted hostname. Display names and comments are rejected.
func ValidateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	at := strings.LastIndexByte(email, '@')
	if at < 1 || at > maxLocalLength {
		return ErrInvalidEmail
	}
	domain, err := idna.Lookup.ToASCII(email[at+1:])
	if err != nil || !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return ErrInvalidEmail
	}
	return nil
}
