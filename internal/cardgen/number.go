// Package cardgen issues fare card numbers. Numbers are all digits and end
// with a Luhn check digit so that typos at a terminal are caught before the
// ledger is consulted.
package cardgen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	DefaultPrefix = "2344"
	DefaultLength = 10

	minLength = 8
	maxLength = 19
)

// Generate returns a number of totalLen digits starting with prefix. The
// digits between prefix and check digit are random.
func Generate(prefix string, totalLen int) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	if totalLen < minLength || totalLen > maxLength {
		return "", fmt.Errorf("total length must be %d..%d", minLength, maxLength)
	}
	fill := totalLen - 1 - len(prefix)
	if fill <= 0 {
		return "", fmt.Errorf("prefix too long: %s", prefix)
	}

	digits, err := randomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}

	body := prefix + digits
	return body + luhnCheckDigit(body), nil
}

// randomDigits uses rejection sampling so that every digit is equally likely.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if b := buf[i]; b < threshold {
				sb.WriteByte('0' + (b % 10))
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	cd := (10 - (sum % 10)) % 10
	return string('0' + byte(cd))
}

// Validate checks length, digits and the Luhn check digit.
func Validate(number string) error {
	if number == "" {
		return fmt.Errorf("card number is required")
	}
	if !IsDigits(number) {
		return fmt.Errorf("card number must contain digits only")
	}
	if l := len(number); l < minLength || l > maxLength {
		return fmt.Errorf("card number length must be %d..%d digits (got %d)", minLength, maxLength, l)
	}

	body := number[:len(number)-1]
	if number[len(number)-1] != luhnCheckDigit(body)[0] {
		return fmt.Errorf("invalid check digit")
	}
	return nil
}

func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if !IsDigits(prefix) {
		return fmt.Errorf("prefix must contain digits only")
	}
	if len(prefix) > 8 {
		return fmt.Errorf("prefix must be at most 8 digits")
	}
	return nil
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Mask hides everything but the last four digits.
func Mask(number string) string {
	cleaned := Normalize(number)
	n := len(cleaned)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-4) + cleaned[n-4:]
}

// Normalize strips spaces, dashes and tabs, as printed on the card face.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}
