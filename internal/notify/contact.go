// Package notify forwards conversations that contain contact details to a
// human. Detection runs on every user message; when an email address or a
// phone number shows up, the whole conversation so far is mailed to the
// configured admin address.
package notify

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

// ErrNotConfigured is returned by a [Notifier] that has no recipient.
var ErrNotConfigured = errors.New("notify: admin email not configured")

// Contact holds the contact details found in a message. Empty fields were
// not found.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Empty reports whether neither an email nor a phone number was found.
func (c Contact) Empty() bool { return c.Email == "" && c.Phone == "" }

// Notifier delivers a conversation transcript together with the detected
// contact details.
type Notifier interface {
	Notify(ctx context.Context, contact Contact, conversation string) error
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// phoneRe finds an optional "+CC" and "(area)" prefix followed by digit
	// groups. Groups join on '.' or '-', or on whitespace when the next group
	// has at least two digits, so "555-1234 2 kids" stops before the "2". The
	// digit count is checked separately so dates or prices with few digits
	// do not match.
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{1,4}\)[\s.-]?)?\d+(?:[.-]\d+|\s\d{2,})*`)

	// isoDateRe masks dates like 2024-01-15 before phone matching.
	isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	// thousandsRe is a number grouped by dots only, e.g. 1.000.000.
	thousandsRe = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Detect returns the first email address and phone number in text.
func Detect(text string) Contact {
	var c Contact
	if m := emailRe.FindString(text); m != "" {
		c.Email = m
	}
	// Strip emails and dates first so their digits are not read as a phone
	// number.
	rest := emailRe.ReplaceAllString(text, " ")
	rest = isoDateRe.ReplaceAllString(rest, " ")
	for _, m := range phoneRe.FindAllString(rest, -1) {
		if thousandsRe.MatchString(m) {
			continue
		}
		if n := countDigits(m); n >= minPhoneDigits && n <= maxPhoneDigits {
			c.Phone = strings.TrimSpace(m)
			break
		}
	}
	return c
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// Transcript formats messages as "Customer: ...\n\nAssistant: ...".
func Transcript(msgs []conversation.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == conversation.RoleUser {
			b.WriteString("Customer: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
