package validation

import (
	"regexp"

	"helpdesk-system/internal/entities"

	"github.com/go-playground/validator/v10"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9\-\s()]{5,20}$`)

// registerRules регистрирует теги, которые мы используем в struct tags
func registerRules(v *validator.Validate) error {
	if err := v.RegisterValidation("ticket_priority", isTicketPriority); err != nil {
		return err
	}
	if err := v.RegisterValidation("stock_op", isStockOperation); err != nil {
		return err
	}
	if err := v.RegisterValidation("phone", isPhone); err != nil {
		return err
	}
	return nil
}

func isTicketPriority(fl validator.FieldLevel) bool {
	switch entities.TicketPriority(fl.Field().String()) {
	case entities.TicketPriorityLow, entities.TicketPriorityMedium,
		entities.TicketPriorityHigh, entities.TicketPriorityUrgent:
		return true
	}
	return false
}

// isStockOperation - только in, out и adjust
func isStockOperation(fl validator.FieldLevel) bool {
	return entities.MaterialLogType(fl.Field().String()).IsStockOperation()
}

func isPhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}
