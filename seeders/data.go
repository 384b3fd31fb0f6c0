package seeders

import "helpdesk-system/internal/entities"

// demoUsers - по одному-два пользователя на каждую роль.
var demoUsers = []entities.User{
	{ID: "11111111-1111-1111-1111-000000000001", Name: "Рахмонов Рустам", Phone: "992928880001", Department: "Департамент ИТ", Role: entities.RoleManager},
	{ID: "11111111-1111-1111-1111-000000000002", Name: "Умаров Умар", Phone: "992928880013", Department: "Отдел технической поддержки", Role: entities.RoleEngineer},
	{ID: "11111111-1111-1111-1111-000000000003", Name: "Хасанов Хасан", Phone: "992928880015", Department: "Отдел технической поддержки", Role: entities.RoleEngineer},
	{ID: "11111111-1111-1111-1111-000000000004", Name: "Алиева Мадина", Phone: "992928880101", Department: "Бухгалтерия", Role: entities.RoleUser},
	{ID: "11111111-1111-1111-1111-000000000005", Name: "Саидов Саид", Phone: "992928880102", Department: "Отдел кадров", Role: entities.RoleUser},
}

// DemoUsers возвращает копию списка.
func DemoUsers() []entities.User {
	return append([]entities.User(nil), demoUsers...)
}
