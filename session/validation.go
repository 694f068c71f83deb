package session

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Password policy inherited from the account service: 8-20 characters with
// at least one digit, one lowercase and one uppercase letter.
const (
	passwordMinLength = 8
	passwordMaxLength = 20
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("accountpassword", validAccountPassword); err != nil {
		panic(fmt.Sprintf("session: register password rule: %v", err))
	}
	return v
}

func validAccountPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < passwordMinLength || len(password) > passwordMaxLength {
		return false
	}

	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	return hasDigit && hasLower && hasUpper
}

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,accountpassword"`
}

type emailInput struct {
	Email string `validate:"required,email"`
}

type passwordInput struct {
	Password string `validate:"required,accountpassword"`
}

// checkInput runs the struct validation and wraps violations so callers can
// distinguish pre-flight rejections from server failures.
func checkInput(input any) error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("session: invalid input: %w", err)
	}
	return nil
}
