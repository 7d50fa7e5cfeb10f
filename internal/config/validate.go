package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if strings.TrimSpace(cfg.Audio.Input) == "" {
		return nil, fmt.Errorf("audio.input must not be empty")
	}
	if cfg.Capture.MaxDurationMS > 0 && cfg.Capture.MaxDurationMS <= cfg.Capture.SilenceDurationMS {
		return nil, fmt.Errorf("capture.max_duration_ms must exceed capture.silence_duration_ms")
	}
	if cfg.Handoff.URL != "" && len(cfg.Handoff.Command.Argv) > 0 {
		return nil, fmt.Errorf("handoff.url and handoff.command are mutually exclusive")
	}
	if cfg.Handoff.Command.Raw != "" && len(cfg.Handoff.Command.Argv) == 0 {
		return nil, fmt.Errorf("handoff.command is configured but empty")
	}
	if cfg.Upload.Bucket == "" && cfg.Upload.Endpoint != "" {
		return nil, fmt.Errorf("upload.endpoint requires upload.bucket")
	}

	if cfg.Meter.Listen != "" && !loopbackListen(cfg.Meter.Listen) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("meter.listen %q is reachable beyond localhost", cfg.Meter.Listen)})
	}

	return warnings, nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s %s", fieldPath(e.Namespace()), formatValidationMessage(e)))
	}
	return errors.New(strings.Join(messages, "; "))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be > %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(e.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

func loopbackListen(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
