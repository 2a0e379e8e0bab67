package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultOwner = "Guest"

const MinUIDLength = 4

type Card struct {
	UID         string          `json:"uid"`   // Unique reader identifier
	Owner       string          `json:"owner"` // Display name, assigned by admins
	Balance     decimal.Decimal `json:"balance"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// NewCard is the record registered on first sight of a uid.
func NewCard(uid string, now time.Time) Card {
	return Card{
		UID:         uid,
		Owner:       DefaultOwner,
		Balance:     decimal.Zero,
		LastUpdated: now,
	}
}

func (c Card) OwnerOrDefault() string {
	if c.Owner == "" {
		return DefaultOwner
	}
	return c.Owner
}

// ValidUID reports whether uid is printable ASCII and long enough. Records
// failing this are corrupt.
func ValidUID(uid string) bool {
	if len(uid) < MinUIDLength {
		return false
	}
	return IsPrintable(uid)
}

// IsPrintable reports whether every byte of s is in 0x20-0x7E.
func IsPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// StripNonPrintable drops every byte outside 0x20-0x7E.
func StripNonPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x20 && s[i] <= 0x7e {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// SanitizeUID is applied to uids typed by admins: non-printables are
// removed and surrounding spaces trimmed. ok is false if what remains is
// not a valid uid.
func SanitizeUID(raw string) (uid string, ok bool) {
	uid = strings.TrimSpace(StripNonPrintable(raw))
	return uid, ValidUID(uid)
}
