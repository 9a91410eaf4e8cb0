package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator builds the validator used for Config. Fields are reported by
// their configuration key ("remote.database_url"), the same spelling users
// write in YAML and, upper-cased, in MEMKEEPER_* variables.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("env", validateEnvironment)
	_ = v.RegisterValidation("host", validateHost)
	_ = v.RegisterValidation("agentid", validateAgentID)
	v.RegisterStructValidation(validateBackoff, RemoteConfig{})
	return v
}

// FieldError is one failed rule on one configuration key.
type FieldError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors lists every failed rule of a Config.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("invalid configuration:")
	for _, fe := range e {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// ValidateWithDetails validates cfg and returns ValidationErrors on failure.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, FieldError{
			Field:   configKey(fe.Namespace()),
			Message: describe(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

// configKey drops the root type name from a validator namespace.
func configKey(ns string) string {
	if _, key, ok := strings.Cut(ns, "."); ok {
		return key
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + conditionKey(fe.Param())
	case "required_unless":
		return "is required unless " + conditionKey(fe.Param())
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "env":
		return "must be one of: development, staging, production"
	case "host":
		return "must be a host name or IP address, optionally with a port"
	case "agentid":
		return "must not contain whitespace, ':' or '/'"
	case "backoff":
		return "must not be below initial_backoff"
	default:
		return "failed " + fe.Tag()
	}
}

// conditionKey renders a "Backend http" rule parameter as "backend=http".
func conditionKey(param string) string {
	field, value, _ := strings.Cut(param, " ")
	return strings.ToLower(field) + "=" + value
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	}
	return false
}

// validateHost accepts an empty value, an IP address, a host name, or either
// of those with a port.
func validateHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		if port == "" {
			return false
		}
		host = h
		if net.ParseIP(host) != nil {
			return true
		}
	}
	if host == "" {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
		for _, r := range label {
			if !isHostLabelChar(r) {
				return false
			}
		}
	}
	return true
}

func isHostLabelChar(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

// validateAgentID rejects characters that would break the agent's cache key
// namespace or the archive URL path.
func validateAgentID(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), " \t\r\n:/")
}

func validateBackoff(sl validator.StructLevel) {
	rc := sl.Current().Interface().(RemoteConfig)
	if rc.MaxBackoff > 0 && rc.MaxBackoff < rc.InitialBackoff {
		sl.ReportError(rc.MaxBackoff, "max_backoff", "MaxBackoff", "backoff", "")
	}
}
