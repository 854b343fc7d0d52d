package dataType

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidRule     = errors.New("invalid rule")
	ErrInvalidSettings = errors.New("invalid settings")
)

var validate = validator.New()

// ValidateRule checks a rule against the struct tags shared with shops.yml.
func ValidateRule(rule Rule) error {
	if err := validate.Struct(rule); err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidRule, rule.ID, err)
	}
	return nil
}

func ValidateSettings(settings Settings) error {
	if err := validate.Struct(settings); err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidSettings, settings.Shop, err)
	}
	return nil
}
