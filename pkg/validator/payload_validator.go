package validator

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/modulith/modulith/internal/domain"

	"github.com/google/uuid"
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// PayloadValidator checks a raw record payload against a module config and
// produces a normalized payload. It is a pure function of (config, payload):
// all field errors are collected and returned together, never thrown, so
// callers can render a complete error set. Uniqueness is not checked here;
// it needs a store lookup and belongs to the record facade.
type PayloadValidator struct{}

// NewPayloadValidator creates a new payload validator
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{}
}

// Validate normalizes payload against config. On success the returned error
// list is empty and every value type-matches its field's data type.
func (pv *PayloadValidator) Validate(config domain.ModuleConfig, payload map[string]any) (map[string]any, []domain.FieldError) {
	normalized := make(map[string]any, len(payload))
	errs := []domain.FieldError{}

	for _, field := range config.Fields {
		value, exists := payload[field.Name]

		if !exists || value == nil {
			if field.Required {
				errs = append(errs, domain.FieldError{
					Field:   field.Name,
					Kind:    domain.FieldErrorRequired,
					Message: fmt.Sprintf("required field '%s' is missing", field.Name),
				})
				continue
			}
			if field.Default != nil {
				normalized[field.Name] = field.Default
			}
			continue
		}

		coerced, err := pv.coerceValue(field, value)
		if err != nil {
			errs = append(errs, domain.FieldError{
				Field:   field.Name,
				Kind:    domain.FieldErrorTypeMismatch,
				Message: err.Error(),
				Value:   value,
			})
			continue
		}

		if constraintErrs := pv.checkConstraints(field, coerced); len(constraintErrs) > 0 {
			errs = append(errs, constraintErrs...)
			continue
		}

		normalized[field.Name] = coerced
	}

	for name, value := range payload {
		if _, ok := config.FieldByName(name); !ok {
			errs = append(errs, domain.FieldError{
				Field:   name,
				Kind:    domain.FieldErrorUnknownField,
				Message: fmt.Sprintf("field '%s' is not defined in module %s", name, config.Name),
				Value:   value,
			})
		}
	}

	// Custom rules run last, against the normalized payload, so they see
	// coerced values.
	probe := domain.Record{Data: normalized}
	for _, field := range config.Fields {
		for _, rule := range field.Rules {
			if _, ok := normalized[rule.Field]; !ok {
				continue
			}
			if !domain.Compare(rule.Operator, probe.ValueForField(rule.Field), rule.Value) {
				errs = append(errs, ruleError(rule))
			}
		}
	}
	for _, rule := range config.Rules {
		if _, ok := normalized[rule.Field]; !ok {
			continue
		}
		if !domain.Compare(rule.Operator, probe.ValueForField(rule.Field), rule.Value) {
			errs = append(errs, ruleError(rule))
		}
	}

	return normalized, errs
}

func ruleError(rule domain.ValidationRule) domain.FieldError {
	message := rule.Message
	if message == "" {
		message = fmt.Sprintf("field '%s' failed rule %s %v", rule.Field, rule.Operator, rule.Value)
	}
	return domain.FieldError{
		Field:   rule.Field,
		Kind:    domain.FieldErrorRule,
		Message: message,
	}
}

// coerceValue attempts type coercion of a raw value to the field's data type.
func (pv *PayloadValidator) coerceValue(field domain.FieldDefinition, value any) (any, error) {
	switch field.DataType {
	case domain.FieldTypeText, domain.FieldTypePicklist:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field '%s' must be a string, got %T", field.Name, value)
		}
		return str, nil

	case domain.FieldTypeNumber:
		number, ok := toNumber(value)
		if !ok {
			return nil, fmt.Errorf("field '%s' must be a number, got %T", field.Name, value)
		}
		return number, nil

	case domain.FieldTypeCurrency:
		number, ok := toNumber(value)
		if !ok {
			return nil, fmt.Errorf("field '%s' must be a currency amount, got %T", field.Name, value)
		}
		decimals := 2
		if field.Config != nil && field.Config.Decimals != nil {
			decimals = *field.Config.Decimals
		}
		factor := math.Pow10(decimals)
		return math.Round(number*factor) / factor, nil

	case domain.FieldTypeDate:
		switch v := value.(type) {
		case time.Time:
			return v.Format(time.RFC3339), nil
		case string:
			for _, layout := range dateLayouts {
				if parsed, err := time.Parse(layout, v); err == nil {
					return parsed.Format(time.RFC3339), nil
				}
			}
			return nil, fmt.Errorf("field '%s' must be a valid date, got %q", field.Name, v)
		default:
			return nil, fmt.Errorf("field '%s' must be a date string, got %T", field.Name, value)
		}

	case domain.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("field '%s' must be a boolean, got %q", field.Name, v)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("field '%s' must be a boolean, got %T", field.Name, value)
		}

	case domain.FieldTypeLookup:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field '%s' must be a record id string, got %T", field.Name, value)
		}
		id, err := uuid.Parse(strings.TrimSpace(str))
		if err != nil {
			return nil, fmt.Errorf("field '%s' must be a valid record id: %v", field.Name, err)
		}
		return id.String(), nil

	case domain.FieldTypeFile:
		meta, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field '%s' must be file metadata, got %T", field.Name, value)
		}
		if _, ok := meta["name"].(string); !ok {
			return nil, fmt.Errorf("field '%s' file metadata requires a name", field.Name)
		}
		return meta, nil

	default:
		return nil, fmt.Errorf("field '%s' has unknown type %s", field.Name, field.DataType)
	}
}

// checkConstraints applies FieldConfig constraints to an already-coerced value.
func (pv *PayloadValidator) checkConstraints(field domain.FieldDefinition, value any) []domain.FieldError {
	cfg := field.Config
	if cfg == nil {
		return nil
	}

	var errs []domain.FieldError
	constraint := func(format string, args ...any) {
		errs = append(errs, domain.FieldError{
			Field:   field.Name,
			Kind:    domain.FieldErrorConstraint,
			Message: fmt.Sprintf(format, args...),
			Value:   value,
		})
	}

	switch field.DataType {
	case domain.FieldTypeText:
		str := value.(string)
		if cfg.MinLength != nil && len(str) < *cfg.MinLength {
			constraint("field '%s' length %d is less than minimum %d", field.Name, len(str), *cfg.MinLength)
		}
		if cfg.MaxLength != nil && len(str) > *cfg.MaxLength {
			constraint("field '%s' length %d is greater than maximum %d", field.Name, len(str), *cfg.MaxLength)
		}
		if cfg.Pattern != "" {
			re, err := regexp.Compile(cfg.Pattern)
			if err != nil {
				constraint("field '%s' has an invalid pattern %q", field.Name, cfg.Pattern)
			} else if !re.MatchString(str) {
				constraint("field '%s' value does not match pattern %q", field.Name, cfg.Pattern)
			}
		}

	case domain.FieldTypeNumber, domain.FieldTypeCurrency:
		number := value.(float64)
		if cfg.MinValue != nil && number < *cfg.MinValue {
			constraint("field '%s' value %v is less than minimum %v", field.Name, number, *cfg.MinValue)
		}
		if cfg.MaxValue != nil && number > *cfg.MaxValue {
			constraint("field '%s' value %v is greater than maximum %v", field.Name, number, *cfg.MaxValue)
		}

	case domain.FieldTypePicklist:
		str := value.(string)
		if len(cfg.Options) > 0 && !containsString(cfg.Options, str) {
			constraint("field '%s' value %q is not one of %v", field.Name, str, cfg.Options)
		}

	case domain.FieldTypeFile:
		meta := value.(map[string]any)
		if cfg.MaxSizeBytes != nil {
			if size, ok := toNumber(meta["size"]); ok && int64(size) > *cfg.MaxSizeBytes {
				constraint("field '%s' file size %d exceeds limit %d", field.Name, int64(size), *cfg.MaxSizeBytes)
			}
		}
		if len(cfg.Accept) > 0 {
			name, _ := meta["name"].(string)
			contentType, _ := meta["contentType"].(string)
			if !fileAccepted(cfg.Accept, name, contentType) {
				constraint("field '%s' file type is not accepted (%v)", field.Name, cfg.Accept)
			}
		}
	}

	return errs
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func containsString(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

func fileAccepted(accept []string, name, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, entry := range accept {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, ".") && entry == ext {
			return true
		}
		if contentType != "" && strings.HasPrefix(strings.ToLower(contentType), entry) {
			return true
		}
	}
	return false
}
