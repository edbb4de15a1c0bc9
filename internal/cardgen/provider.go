package cardgen

import (
	"fmt"
	"strconv"
	"sync"
)

// Provider hands out card numbers. Implementations must be safe for
// concurrent use.
type Provider interface {
	NewNumber() (string, error)
}

// Random generates Luhn-valid numbers from crypto/rand.
type Random struct {
	Prefix string
	Length int
}

func NewRandom(prefix string, length int) *Random {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if length == 0 {
		length = DefaultLength
	}
	return &Random{Prefix: prefix, Length: length}
}

func (r *Random) NewNumber() (string, error) {
	return Generate(r.Prefix, r.Length)
}

// Sequence produces prefix + zero-padded counter + check digit, starting at
// 1. It is deterministic and meant for tests and local tooling.
type Sequence struct {
	Prefix string
	Length int

	mu   sync.Mutex
	next uint64
}

func NewSequence(prefix string, length int) *Sequence {
	if length == 0 {
		length = DefaultLength
	}
	return &Sequence{Prefix: prefix, Length: length, next: 1}
}

func (s *Sequence) NewNumber() (string, error) {
	s.mu.Lock()
	n := s.next
	s.next++
	s.mu.Unlock()

	width := s.Length - 1 - len(s.Prefix)
	if width <= 0 {
		return "", fmt.Errorf("prefix too long: %s", s.Prefix)
	}
	counter := strconv.FormatUint(n, 10)
	if len(counter) > width {
		return "", fmt.Errorf("sequence exhausted after %d numbers", n-1)
	}

	body := s.Prefix + fmt.Sprintf("%0*d", width, n)
	return body + luhnCheckDigit(body), nil
}

// GenerateUnique asks p for numbers until exists reports an unused one.
func GenerateUnique(p Provider, maxRetries int, exists func(string) (bool, error)) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for i := 0; i <= maxRetries; i++ {
		number, err := p.NewNumber()
		if err != nil {
			return "", err
		}
		if exists == nil {
			return number, nil
		}
		used, err := exists(number)
		if err != nil {
			return "", fmt.Errorf("exists callback: %w", err)
		}
		if !used {
			return number, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique card number after %d retries", maxRetries)
}
