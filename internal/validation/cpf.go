// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const cpfLength = 14

// IsValidCPF проверяет CPF в формате 000.000.000-00 и его контрольные цифры по модулю 11.
func IsValidCPF(cpf string) bool {
	if len(cpf) != cpfLength {
		return false
	}

	digits := make([]int, 0, 11)
	for i := 0; i < len(cpf); i++ {
		ch := rune(cpf[i])
		switch i {
		case 3, 7:
			if ch != '.' {
				return false
			}
		case 11:
			if ch != '-' {
				return false
			}
		default:
			if !unicode.IsDigit(ch) {
				return false
			}
			digits = append(digits, int(ch-'0'))
		}
	}

	return checkDigit(digits[:9]) == digits[9] && checkDigit(digits[:10]) == digits[10]
}

func checkDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for _, d := range digits {
		sum += d * weight
		weight--
	}

	rest := sum * 10 % 11
	if rest == 10 {
		return 0
	}
	return rest
}
