package pixkey

import (
	"strings"

	"pixwithdraw/internal/domain"
)

// Mask renders a key for display, keeping a few leading and trailing
// characters and redacting the rest. Keys that fail validation are masked
// generically.
func Mask(t domain.KeyType, raw string) string {
	if len(Validate(t, raw)) > 0 {
		return maskGeneric(strings.TrimSpace(raw))
	}
	key := Normalize(t, raw)

	switch t {
	case domain.KeyEmail:
		at := strings.LastIndexByte(key, '@')
		local, host := []rune(key[:at]), key[at:]
		keep := 2
		if len(local) <= keep {
			keep = 1
		}
		return string(local[:keep]) + stars(max(len(local)-keep, 3)) + host
	case domain.KeyCPF:
		return "***." + key[3:6] + "." + key[6:9] + "-**"
	case domain.KeyCNPJ:
		return key[:2] + ".***.***/" + key[8:12] + "-**"
	case domain.KeyPhone:
		n := len(key)
		return "+" + countryCode + " (" + key[:2] + ") " + stars(n-6) + "-" + key[n-4:]
	case domain.KeyRandom:
		if len(key) == canonicalTokenLen {
			return key[:8] + "-****-****-****-********" + key[32:]
		}
		return key[:8] + stars(len(key)-12) + key[len(key)-4:]
	}
	return maskGeneric(key)
}

func maskGeneric(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return stars(len(r))
	}
	return string(r[:2]) + stars(len(r)-4) + string(r[len(r)-2:])
}

func stars(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("*", n)
}
