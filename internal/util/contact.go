package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips formatting characters, keeping a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidEmail reports whether s parses as a bare address (no display name).
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, "@")
}

// ValidPhone accepts 7 to 15 digits with an optional leading '+'.
func ValidPhone(s string) bool {
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HashContact returns the deterministic lookup key for a normalized contact.
func HashContact(contact string) string {
	sum := sha256.Sum256([]byte(contact))
	return hex.EncodeToString(sum[:])
}

// MaskEmail keeps the first two characters of the local part:
// "ab@example.com" -> "ab***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return MaskPhone(email)
	}
	local, domain := []rune(email[:at]), email[at:]
	if len(local) > 2 {
		local = local[:2]
	}
	return string(local) + "***" + domain
}

// MaskPhone replaces the last four characters with '*', preserving length:
// "5551234567" -> "555123****".
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:len(phone)-4] + "****"
}
