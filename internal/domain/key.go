package domain

// MaxKeyPartLength bounds identifiers embedded into storage keys.
const MaxKeyPartLength = 128

// IsValidKeyPart returns true if s matches [a-zA-Z0-9_-]{1,128}.
func IsValidKeyPart(s string) bool {
	if s == "" || len(s) > MaxKeyPartLength {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != '-' {
			return false
		}
	}
	return true
}
