package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxLength = 200
	MinLength = 3
)

var (
	ErrTooLong          = errors.New("prompt too long")
	ErrTooShort         = errors.New("prompt too short")
	ErrForbiddenContent = errors.New("prompt contains inappropriate content")
)

var forbiddenTerms = []string{
	"explicit",
	"nsfw",
	"offensive",
	"inappropriate",
	"hate",
	"violence",
	"gore",
}

var (
	unsafeChars = regexp.MustCompile(`[<>{}]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Validate prüft einen eigenen Prompt. Ein leerer Prompt ist gültig und
// bedeutet, dass nur der Stil-Prompt verwendet wird.
func Validate(p string) error {
	if strings.TrimSpace(p) == "" {
		return nil
	}
	if len([]rune(p)) > MaxLength {
		return fmt.Errorf("%w: maximum is %d characters", ErrTooLong, MaxLength)
	}

	lower := strings.ToLower(p)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return ErrForbiddenContent
		}
	}

	if len([]rune(strings.TrimSpace(p))) < MinLength {
		return fmt.Errorf("%w: minimum is %d characters", ErrTooShort, MinLength)
	}
	return nil
}

// Sanitize entfernt <>{} und fasst Leerraum zusammen
func Sanitize(p string) string {
	p = unsafeChars.ReplaceAllString(strings.TrimSpace(p), "")
	return strings.TrimSpace(whitespace.ReplaceAllString(p, " "))
}

// Prepare validiert und bereinigt einen eigenen Prompt in einem Schritt. Die
// Mindestlänge gilt auch für den bereinigten Text.
func Prepare(p string) (string, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	clean := Sanitize(p)
	if strings.TrimSpace(p) != "" && len([]rune(clean)) < MinLength {
		return "", fmt.Errorf("%w: minimum is %d characters", ErrTooShort, MinLength)
	}
	return clean, nil
}
