// internal/authz/permissions.go
package authz

import "helpdesk-system/internal/entities"

// --- СПИСОК ВСЕХ ПЕРМИШЕНОВ В СИСТЕМЕ ---

const (
	// Тикеты
	TicketsCreate  = "tickets:create"
	TicketsView    = "tickets:view"
	TicketsUpdate  = "tickets:update"
	TicketsAssign  = "tickets:assign"
	TicketsProcess = "tickets:process" // start, pause, continue, reject, resolve
	TicketsClose   = "tickets:close"

	// Склад
	MaterialsView        = "materials:view"
	MaterialsManage      = "materials:manage" // create, update, delete
	MaterialsPriceView   = "materials:price:view"
	MaterialsPriceUpdate = "materials:price:update"
	MaterialsStockIn     = "materials:stock:in"
	MaterialsStockOut    = "materials:stock:out"
	MaterialsStockAdjust = "materials:stock:adjust"
	MaterialsStats       = "materials:stats"
	MaterialsLogsView    = "materials:logs:view"

	// Заявки на выдачу
	RequisitionsValidate = "requisitions:validate"
	RequisitionsCreate   = "requisitions:create"
	RequisitionsView     = "requisitions:view"

	// Модификаторы Области (Scopes)
	ScopeOwn = "scope:own"
	ScopeAll = "scope:all"
)

var rolePermissions = map[entities.Role][]string{
	entities.RoleUser: {
		TicketsCreate, TicketsView, TicketsUpdate, TicketsClose,
		ScopeOwn,
	},
	entities.RoleEngineer: {
		TicketsCreate, TicketsView, TicketsUpdate, TicketsProcess, TicketsClose,
		MaterialsView, MaterialsStockOut,
		RequisitionsValidate, RequisitionsCreate, RequisitionsView,
		ScopeOwn,
	},
	entities.RoleManager: {
		TicketsCreate, TicketsView, TicketsUpdate, TicketsAssign, TicketsProcess, TicketsClose,
		MaterialsView, MaterialsManage, MaterialsPriceView, MaterialsPriceUpdate,
		MaterialsStockIn, MaterialsStockOut, MaterialsStockAdjust, MaterialsStats, MaterialsLogsView,
		RequisitionsValidate, RequisitionsCreate, RequisitionsView,
		ScopeAll,
	},
}

// PermissionsFor строит набор прав по роли. Неизвестная роль не получает ничего.
func PermissionsFor(role entities.Role) map[string]bool {
	perms := make(map[string]bool)
	for _, p := range rolePermissions[role] {
		perms[p] = true
	}
	return perms
}

// StockPermission сопоставляет тип складской операции с правом.
func StockPermission(op entities.MaterialLogType) string {
	switch op {
	case entities.MaterialLogIn:
		return MaterialsStockIn
	case entities.MaterialLogOut:
		return MaterialsStockOut
	case entities.MaterialLogAdjust:
		return MaterialsStockAdjust
	}
	return ""
}
