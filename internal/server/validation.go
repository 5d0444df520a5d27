package server

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"taskhub/internal/auth"
	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/go-playground/validator"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := parseISODate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("taskpriority", func(fl validator.FieldLevel) bool {
		return models.TaskPriority(fl.Field().String()).Valid()
	})
	// bcrypt limits input by bytes, max counts runes.
	_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= auth.MaxPasswordBytes
	})
	return v
}

func parseISODate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// validateRequest runs struct validation and converts failures into a
// ValidationError keyed by JSON field name.
func (api *TaskAPI) validateRequest(req any) error {
	err := api.validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrBadRequest
	}

	out := &errors.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		if _, seen := out.Fields[fe.Field()]; seen {
			continue
		}
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Param() == "1" {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "isodate":
		return "must be an ISO-8601 date-time"
	case "bcryptlen":
		return fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)
	case "taskstatus":
		return "must be one of To Do, In Progress, Review, Completed"
	case "taskpriority":
		return "must be one of Low, Medium, High, Urgent"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
