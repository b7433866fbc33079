// Package model содержит доменные сущности движка баллов и заказов вещевого обеспечения.
package model

import "time"

// Role описывает роль участника системы.
type Role string

const (
	RoleStaff          Role = "staff"
	RoleStoreOperator  Role = "store_operator"
	RoleTailorOperator Role = "tailor_operator"
	RoleBeneficiary    Role = "beneficiary"
)

// IsValid сообщает, является ли роль известной.
func (r Role) IsValid() bool {
	switch r {
	case RoleStaff, RoleStoreOperator, RoleTailorOperator, RoleBeneficiary:
		return true
	}
	return false
}

// Actor описывает аутентифицированного инициатора операции.
// Передаётся явно в каждую изменяющую операцию.
type Actor struct {
	ID   int64
	Role Role
}

// Person представляет военнослужащего или сотрудника, зарегистрированного в системе.
type Person struct {
	ID             int64
	ServiceNumber  string
	Name           string
	Rank           string
	EnlistmentDate time.Time
	RetirementDate *time.Time
	Role           Role
	StoreID        *int64
	TailorID       *int64
	Active         bool
	CreatedAt      time.Time
}

// IsBeneficiary сообщает, может ли человек получать и тратить баллы.
func (p Person) IsBeneficiary() bool {
	return p.Role == RoleBeneficiary
}

// Product описывает позицию каталога вещевого обеспечения.
type Product struct {
	ID     int64
	Name   string
	Type   ProductType
	Price  int64
	Active bool
}

// Store описывает точку продаж (склад/магазин).
type Store struct {
	ID   int64
	Name string
}

// Tailor описывает ателье-партнёра.
type Tailor struct {
	ID     int64
	Name   string
	Active bool
}
