package graph

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	onserrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Node key formats carried over from the original deployment. The host
// address is a dotted-quad IPv4 followed by a port.
var (
	orgNamePattern       = regexp.MustCompile(`^[A-Za-z0-9_@.]+$`)
	domainNamePattern    = regexp.MustCompile(`^[A-Za-z0-9.]+$`)
	recordNamePattern    = regexp.MustCompile(`^[A-Za-z0-9.:]+$`)
	recordTypePattern    = regexp.MustCompile(`^[A-Z]+$`)
	hostAddressPattern   = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?):[0-9]{1,5}$`)
	storeUsernamePattern = regexp.MustCompile(`^[A-Za-z]+$`)
	storePasswordPattern = regexp.MustCompile(`^[A-Za-z0-9_@.]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	patterns := map[string]*regexp.Regexp{
		"org_name":       orgNamePattern,
		"domain_name":    domainNamePattern,
		"record_name":    recordNamePattern,
		"record_type":    recordTypePattern,
		"host_address":   hostAddressPattern,
		"store_username": storeUsernamePattern,
		"store_password": storePasswordPattern,
	}
	for tag, pattern := range patterns {
		p := pattern
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return p.MatchString(fl.Field().String())
		})
	}
	return v
}

// Validate checks a node's key properties against the format and length
// bounds of its kind. Failures surface as VALIDATION errors naming the
// offending field.
func Validate(node any) error {
	err := validate.Struct(node)
	if err == nil {
		return nil
	}
	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return onserrors.WithMetadata(onserrors.CodeValidation,
			"invalid "+first.Field()+" (constraint "+first.Tag()+")",
			map[string]string{"field": first.Field(), "constraint": first.Tag()})
	}
	return onserrors.Wrap(onserrors.CodeValidation, "validate node properties", err)
}
