package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const slotCodeLength = 4

var platePattern = regexp.MustCompile(`^[A-Z]{3}-[0-9]{4}$`)

// IsValidPlate проверяет номер автомобиля в формате AAA-0000.
func IsValidPlate(plate string) bool {
	return platePattern.MatchString(plate)
}

// IsValidSlotCode проверяет код места: ровно четыре символа без пробелов по краям.
func IsValidSlotCode(code string) bool {
	if strings.TrimSpace(code) != code {
		return false
	}
	return utf8.RuneCountInString(code) == slotCodeLength
}

const (
	clientNameMin = 5
	clientNameMax = 100
)

// IsValidClientName проверяет длину имени клиента.
func IsValidClientName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= clientNameMin && n <= clientNameMax
}
