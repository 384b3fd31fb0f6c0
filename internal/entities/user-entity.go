// Файл: internal/entities/user-entity.go
package entities

import "time"

type Role string

const (
	RoleUser     Role = "user"
	RoleEngineer Role = "engineer"
	RoleManager  Role = "manager"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleEngineer || r == RoleManager
}

// IsStaff - инженеры и менеджеры, то есть те, кто работает со складом и заявками.
func (r Role) IsStaff() bool {
	return r == RoleEngineer || r == RoleManager
}

type User struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Phone      string    `json:"phone" db:"phone"`
	Department string    `json:"department" db:"department"`
	Role       Role      `json:"role" db:"role"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
