package validator

import (
	"strings"

	"github.com/modulith/modulith/internal/domain"
)

// ValidateModuleConfig checks a module config for structural integrity before
// it is persisted: field-name uniqueness, data type / ui type pairings known
// to the type catalog, and type-specific config requirements. Violations are
// returned as *domain.SchemaError.
func ValidateModuleConfig(config domain.ModuleConfig) error {
	if strings.TrimSpace(config.Name) == "" {
		return domain.NewSchemaError("module name is required")
	}
	if len(config.Fields) == 0 {
		return domain.NewSchemaError("module %s requires at least one field", config.Name)
	}

	seen := make(map[string]struct{}, len(config.Fields))
	for _, field := range config.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return domain.NewSchemaError("module %s has a field with an empty name", config.Name)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return domain.NewSchemaError("module %s declares field %s more than once", config.Name, name)
		}
		seen[key] = struct{}{}

		// Name is a stable machine key, label is display text; the two
		// must not collapse into one another.
		if field.Label != "" && strings.EqualFold(field.Label, name) && strings.ContainsAny(name, " ") {
			return domain.NewSchemaError("field %s must use a machine name distinct from its label", name)
		}

		if !domain.KnownFieldType(field.DataType) {
			return domain.NewSchemaError("field %s has unknown data type %s", name, field.DataType)
		}
		if !domain.AllowsUIType(field.DataType, field.UIType) {
			return domain.NewSchemaError("field %s pairs data type %s with unsupported ui type %s", name, field.DataType, field.UIType)
		}

		switch field.DataType {
		case domain.FieldTypePicklist:
			if field.Config == nil || len(field.Config.Options) == 0 {
				return domain.NewSchemaError("picklist field %s requires options", name)
			}
		case domain.FieldTypeLookup:
			if field.Config == nil || strings.TrimSpace(field.Config.LookupModule) == "" {
				return domain.NewSchemaError("lookup field %s requires a lookup module", name)
			}
		}

		for _, rule := range field.Rules {
			if err := validateRule(config, rule); err != nil {
				return err
			}
		}
	}

	for _, rule := range config.Rules {
		if err := validateRule(config, rule); err != nil {
			return err
		}
	}

	if config.InitialStatus != "" && len(config.Statuses) > 0 {
		found := false
		for _, status := range config.Statuses {
			if status == config.InitialStatus {
				found = true
				break
			}
		}
		if !found {
			return domain.NewSchemaError("initial status %s is not in the module status vocabulary", config.InitialStatus)
		}
	}

	return nil
}

func validateRule(config domain.ModuleConfig, rule domain.ValidationRule) error {
	if !domain.KnownOperator(rule.Operator) {
		return domain.NewSchemaError("rule on field %s uses unknown operator %s", rule.Field, rule.Operator)
	}
	if rule.Field != "status" {
		if _, ok := config.FieldByName(rule.Field); !ok {
			return domain.NewSchemaError("rule references unknown field %s", rule.Field)
		}
	}
	return nil
}
