// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Префиксы номеров документов.
const (
	PrefixOnlineOrder  = "ORD"
	PrefixOfflineOrder = "OFF"
	PrefixTicket       = "TKT"
)

const (
	dateLayout = "20060102"
	seqDigits  = 5
)

// FormatNumber формирует номер вида PREFIX-YYYYMMDD-NNNNN.
// День берётся из day как есть, без смены часового пояса.
func FormatNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, day.Format(dateLayout), seqDigits, seq)
}

// IsValidOrderNumber проверяет формат номера заказа {ORD|OFF}-YYYYMMDD-NNNNN.
func IsValidOrderNumber(number string) bool {
	prefix, ok := parse(number)
	return ok && (prefix == PrefixOnlineOrder || prefix == PrefixOfflineOrder)
}

// IsValidTicketNumber проверяет формат номера талона TKT-YYYYMMDD-NNNNN.
func IsValidTicketNumber(number string) bool {
	prefix, ok := parse(number)
	return ok && prefix == PrefixTicket
}

func parse(number string) (string, bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return "", false
	}

	if _, err := time.Parse(dateLayout, parts[1]); err != nil || len(parts[1]) != len(dateLayout) {
		return "", false
	}

	seq := parts[2]
	if len(seq) != seqDigits || seq == strings.Repeat("0", seqDigits) {
		return "", false
	}
	for _, ch := range seq {
		if !unicode.IsDigit(ch) {
			return "", false
		}
	}

	return parts[0], true
}
