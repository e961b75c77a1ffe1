package validator

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"storefront/internal/usecase"

	playground "github.com/go-playground/validator/v10"
)

// RequestValidator は echo.Validator の実装。
// エラーは usecase.HTTPError(400) にして handler の writeError にそのまま渡せるようにする。
type RequestValidator struct {
	v *playground.Validate
}

func New() *RequestValidator {
	v := playground.New(playground.WithRequiredStructEnabled())

	//エラーメッセージはjsonのフィールド名で出す
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	return &RequestValidator{v: v}
}

func (r *RequestValidator) Validate(i interface{}) error {
	err := r.v.Struct(i)
	if err == nil {
		return nil
	}

	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return usecase.NewHTTPError(http.StatusBadRequest, message(verrs[0]))
}

// 最初の1件だけ返す
func message(fe playground.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s too long", field)
	default:
		return "invalid " + field
	}
}
