package pixkey

import (
	"fmt"

	"pixwithdraw/internal/domain"
)

type taxIDKind struct {
	name   string
	length int
	// starting weight of the first check digit, the second starts one higher
	weight int
	wrap   bool
}

var (
	cpf  = taxIDKind{name: "cpf", length: 11, weight: 10}
	cnpj = taxIDKind{name: "cnpj", length: 14, weight: 5, wrap: true}
)

func validateTaxID(raw string, kind taxIDKind) []domain.Violation {
	d := digitsOnly(raw)
	if len(d) != kind.length {
		return []domain.Violation{violation(domain.ViolationInvalidLength,
			fmt.Sprintf("%s must have %d digits", kind.name, kind.length))}
	}
	if repeated(d) {
		return []domain.Violation{violation(domain.ViolationRepeatedDigits,
			fmt.Sprintf("%s cannot be a single repeated digit", kind.name))}
	}

	digits := make([]int, len(d))
	for i := range d {
		digits[i] = int(d[i] - '0')
	}
	body := kind.length - 2
	first := checkDigit(digits[:body], kind.weight, kind.wrap)
	second := checkDigit(digits[:body+1], kind.weight+1, kind.wrap)
	if digits[body] != first || digits[body+1] != second {
		return []domain.Violation{violation(domain.ViolationInvalidChecksum,
			fmt.Sprintf("%s check digits do not match", kind.name))}
	}
	return nil
}

// checkDigit computes a modulo-11 verification digit. Weights start at weight
// and descend by one per digit; with wrap they restart at 9 after reaching 2.
func checkDigit(digits []int, weight int, wrap bool) int {
	sum := 0
	w := weight
	for _, d := range digits {
		sum += d * w
		w--
		if wrap && w < 2 {
			w = 9
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func repeated(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}
