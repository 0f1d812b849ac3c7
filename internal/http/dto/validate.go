package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct's validate tags.
func Validate(req any) error {
	return validate.Struct(req)
}

// ValidationMessages turns validator errors into one readable line per field.
func ValidationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			out = append(out, field+" is required")
		case "uuid":
			out = append(out, field+" must be a uuid")
		case "numeric":
			out = append(out, field+" must be a decimal number")
		case "oneof":
			out = append(out, field+" must be one of: "+fe.Param())
		case "max":
			out = append(out, field+" must be at most "+fe.Param()+" characters")
		default:
			out = append(out, field+" is invalid")
		}
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
