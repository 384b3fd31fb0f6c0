package validation

import (
	"reflect"

	"github.com/aarondl/null/v8"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// registerNullTypes учит валидатор "смотреть внутрь" типов null.String, null.Time и decimal.
func registerNullTypes(v *validator.Validate) {
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(null.String); ok {
			if val.Valid {
				return val.String
			}
		}
		return nil // чтобы сработал `omitempty`
	}, null.String{})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(null.Time); ok {
			if val.Valid {
				return val.Time
			}
		}
		return nil
	}, null.Time{})

	// decimal.Decimal проверяем как float64, чтобы работали gte/lte.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}
