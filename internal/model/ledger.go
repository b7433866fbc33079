package model

import "time"

// LedgerKind описывает вид движения баллов.
type LedgerKind string

const (
	LedgerGrant   LedgerKind = "grant"
	LedgerReserve LedgerKind = "reserve"
	LedgerRelease LedgerKind = "release"
	LedgerUse     LedgerKind = "use"
	LedgerReturn  LedgerKind = "return"
)

// IsValid сообщает, является ли вид движения известным.
func (k LedgerKind) IsValid() bool {
	switch k {
	case LedgerGrant, LedgerReserve, LedgerRelease, LedgerUse, LedgerReturn:
		return true
	}
	return false
}

// Effect возвращает изменение полей granted, used и reserved сводки
// при проведении записи данного вида на сумму amount.
func (k LedgerKind) Effect(amount int64) (granted, used, reserved int64) {
	switch k {
	case LedgerGrant:
		return amount, 0, 0
	case LedgerReserve:
		return 0, 0, amount
	case LedgerRelease:
		return 0, 0, -amount
	case LedgerUse:
		return 0, amount, 0
	case LedgerReturn:
		return 0, -amount, 0
	}
	return 0, 0, 0
}

// PointSummary содержит агрегированные итоги по баллам одного получателя.
// Является проекцией журнала LedgerEntry и изменяется только вместе с ним.
type PointSummary struct {
	PersonID  int64     `json:"person_id"`
	Granted   int64     `json:"granted"`
	Used      int64     `json:"used"`
	Reserved  int64     `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available возвращает доступный для траты остаток.
func (s PointSummary) Available() int64 {
	return s.Granted - s.Used - s.Reserved
}

// Apply возвращает сводку после проведения записи.
func (s PointSummary) Apply(kind LedgerKind, amount int64) PointSummary {
	g, u, r := kind.Effect(amount)
	s.Granted += g
	s.Used += u
	s.Reserved += r
	return s
}

// Valid проверяет инвариант неотрицательности сводки.
func (s PointSummary) Valid() bool {
	return s.Granted >= 0 && s.Used >= 0 && s.Reserved >= 0 && s.Available() >= 0
}

// LedgerEntry описывает неизменяемый факт движения баллов.
type LedgerEntry struct {
	ID          int64
	PersonID    int64
	Kind        LedgerKind
	Amount      int64
	FiscalYear  *int
	OrderID     *int64
	Description string
	CreatedBy   int64
	CreatedAt   time.Time
}

// GrantReport содержит итоги ежегодного начисления баллов.
type GrantReport struct {
	FiscalYear  int     `json:"fiscal_year"`
	Granted     int     `json:"granted"`
	Skipped     int     `json:"skipped"`
	ZeroAmount  int     `json:"zero_amount"`
	UnknownRank []int64 `json:"unknown_rank,omitempty"`
	TotalPoints int64   `json:"total_points"`
}
