// Package pixkey validates, normalizes and masks instant-payment keys.
// Every function here is pure and safe for concurrent use.
package pixkey

import (
	"fmt"
	"strings"

	"pixwithdraw/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const field = "key"

var validate = validator.New()

// Validate returns the violations of raw against the rules of key type t.
// An empty result means the key is valid.
func Validate(t domain.KeyType, raw string) []domain.Violation {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []domain.Violation{violation(domain.ViolationRequired, "key is required")}
	}

	switch t {
	case domain.KeyEmail:
		return validateEmail(raw)
	case domain.KeyCPF:
		return validateTaxID(raw, cpf)
	case domain.KeyCNPJ:
		return validateTaxID(raw, cnpj)
	case domain.KeyPhone:
		return validatePhone(raw)
	case domain.KeyRandom:
		return validateRandom(raw)
	}
	return []domain.Violation{violation(domain.ViolationUnsupported, fmt.Sprintf("unsupported key type %q", t))}
}

// Normalize returns the canonical storage form of a valid key.
func Normalize(t domain.KeyType, raw string) string {
	raw = strings.TrimSpace(raw)
	switch t {
	case domain.KeyEmail:
		return strings.ToLower(raw)
	case domain.KeyCPF, domain.KeyCNPJ:
		return digitsOnly(raw)
	case domain.KeyPhone:
		return nationalPhone(digitsOnly(raw))
	case domain.KeyRandom:
		if len(raw) == canonicalTokenLen {
			return strings.ToLower(raw)
		}
	}
	return raw
}

func violation(code, message string) domain.Violation {
	return domain.Violation{Field: field, Code: code, Message: message}
}

func validateEmail(raw string) []domain.Violation {
	if err := validate.Var(raw, "email"); err != nil {
		return []domain.Violation{violation(domain.ViolationInvalidFormat, "key is not a valid email address")}
	}
	at := strings.LastIndexByte(raw, '@')
	host := raw[at+1:]
	dot := strings.LastIndexByte(host, '.')
	if dot <= 0 || len(host)-dot-1 < 2 {
		return []domain.Violation{violation(domain.ViolationInvalidFormat, "email domain must have a top-level domain")}
	}
	return nil
}

func validatePhone(raw string) []domain.Violation {
	n := nationalPhone(digitsOnly(raw))
	if len(n) < 10 || len(n) > 11 {
		return []domain.Violation{violation(domain.ViolationInvalidLength, "phone must have 10 or 11 digits after the country code")}
	}
	return nil
}

const (
	countryCode       = "55"
	alnumTokenLen     = 32
	canonicalTokenLen = 36
)

// nationalPhone strips the country code from a digits-only phone number.
func nationalPhone(d string) string {
	if len(d) > 11 && strings.HasPrefix(d, countryCode) {
		return d[len(countryCode):]
	}
	return d
}

func validateRandom(raw string) []domain.Violation {
	switch len(raw) {
	case alnumTokenLen:
		if isAlnum(raw) {
			return nil
		}
	case canonicalTokenLen:
		if _, err := uuid.Parse(raw); err == nil {
			return nil
		}
	}
	return []domain.Violation{violation(domain.ViolationInvalidFormat, "random key must be 32 alphanumeric characters or a hyphenated 8-4-4-4-12 token")}
}

func isAlnum(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
