package validate

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid")

var validate = validator.New()

func Validate(s any) error {
	err := validate.Struct(s)
	if err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalid)
	}

	return nil
}
