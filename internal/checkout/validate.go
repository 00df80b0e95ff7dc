package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/pickle-storefront/internal/models"
)

var fieldLabels = map[string]string{
	"email":      "Email",
	"firstName":  "First name",
	"lastName":   "Last name",
	"address":    "Address",
	"city":       "City",
	"state":      "State",
	"postalCode": "Postal code",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func normalizeCustomer(c models.CustomerInfo) models.CustomerInfo {
	c.Email = strings.TrimSpace(c.Email)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Address = strings.TrimSpace(c.Address)
	c.Apartment = strings.TrimSpace(c.Apartment)
	c.City = strings.TrimSpace(c.City)
	c.State = strings.TrimSpace(c.State)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Country = strings.TrimSpace(c.Country)
	return c
}

// validateCustomer reports the first missing field in form order, and only
// then a malformed email.
func validateCustomer(v *validator.Validate, c models.CustomerInfo) error {
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate customer: %w", err)
	}

	first := fieldErrs[0]
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			first = fe
			break
		}
	}
	label := fieldLabels[first.Field()]
	if label == "" {
		label = first.Field()
	}

	msg := fmt.Sprintf("%s is required", label)
	if first.Tag() == "email" {
		msg = "Please enter a valid email address"
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}
