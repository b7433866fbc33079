// Package points рассчитывает годовое право на баллы вещевого обеспечения.
package points

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// StepIncrement задаёт надбавку за каждый календарный год выслуги.
const StepIncrement int64 = 5000

// DaysInYear задаёт фиксированную длину года для пропорционального расчёта.
// Високосные годы не учитываются.
const DaysInYear = 365

// ErrMalformedDates возвращается при некорректных датах службы.
var ErrMalformedDates = errors.New("malformed service dates")

var rankBase = map[string]int64{
	"private":              300000,
	"private_first_class":  320000,
	"corporal":             340000,
	"sergeant":             400000,
	"staff_sergeant":       450000,
	"sergeant_first_class": 500000,
	"master_sergeant":      550000,
	"sergeant_major":       600000,
	"warrant_officer":      550000,
	"second_lieutenant":    500000,
	"first_lieutenant":     550000,
	"captain":              600000,
	"major":                650000,
	"lieutenant_colonel":   700000,
	"colonel":              750000,
	"brigadier_general":    800000,
	"major_general":        850000,
	"lieutenant_general":   900000,
	"general":              950000,
}

// IsKnownRank сообщает, есть ли звание в таблице базовых норм.
func IsKnownRank(rank string) bool {
	_, ok := rankBase[rank]
	return ok
}

// BaseForRank возвращает базовую норму для звания; для неизвестного звания возвращается 0.
func BaseForRank(rank string) int64 {
	return rankBase[rank]
}

// Calculate возвращает количество баллов, положенное человеку за финансовый год.
// Выслуга считается вычитанием календарных лет. Если дата увольнения приходится
// на финансовый год, сумма пропорционально уменьшается.
func Calculate(p model.Person, fiscalYear int) (int64, error) {
	if fiscalYear <= 0 {
		return 0, fmt.Errorf("%w: fiscal year %d", ErrMalformedDates, fiscalYear)
	}
	if p.EnlistmentDate.IsZero() {
		return 0, fmt.Errorf("%w: enlistment date is missing", ErrMalformedDates)
	}
	if p.RetirementDate != nil && p.RetirementDate.Before(p.EnlistmentDate) {
		return 0, fmt.Errorf("%w: retirement before enlistment", ErrMalformedDates)
	}

	tenure := max(0, fiscalYear-p.EnlistmentDate.Year())
	total := BaseForRank(p.Rank) + int64(tenure)*StepIncrement

	if p.RetirementDate == nil || p.RetirementDate.Year() != fiscalYear {
		return total, nil
	}

	return prorate(total, serviceDays(*p.RetirementDate, fiscalYear)), nil
}

// serviceDays возвращает число дней от 1 января до даты увольнения с округлением вверх.
// Время увольнения трактуется как UTC, чтобы результат не зависел от часового пояса хранения.
func serviceDays(retirement time.Time, fiscalYear int) int64 {
	r := time.Date(retirement.Year(), retirement.Month(), retirement.Day(),
		retirement.Hour(), retirement.Minute(), retirement.Second(), retirement.Nanosecond(), time.UTC)
	start := time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, time.UTC)

	return int64(math.Ceil(r.Sub(start).Hours() / 24))
}

func prorate(total, days int64) int64 {
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(days)).
		Div(decimal.NewFromInt(DaysInYear)).
		Floor().
		IntPart()
}
