package domain

import (
	"fmt"
	"math"
)

// FieldTransform identifies how a mapped value is carried across modules.
type FieldTransform string

const (
	// TransformCopy moves the value untouched.
	TransformCopy FieldTransform = "copy"
	// TransformCurrency rounds the value to two decimal places.
	TransformCurrency FieldTransform = "currency"
	// TransformLineItems deep-copies a list of item maps.
	TransformLineItems FieldTransform = "line_items"
)

// FieldMapping maps one source field onto one target field with an optional
// transform. An empty transform behaves like TransformCopy.
type FieldMapping struct {
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Transform FieldTransform `json:"transform,omitempty"`
}

// ConversionFlow is the declarative description of one lifecycle conversion:
// which module converts into which, the terminal status stamped onto the
// source, and the field mapping that builds the target payload. Every flow is
// an instance of the same generic algorithm; there is no per-flow code path.
type ConversionFlow struct {
	Name                 string         `json:"name"`
	SourceModule         string         `json:"source_module"`
	TargetModule         string         `json:"target_module"`
	SourceTerminalStatus string         `json:"source_terminal_status"`
	TargetInitialStatus  string         `json:"target_initial_status,omitempty"`
	Mappings             []FieldMapping `json:"mappings"`
}

// Apply builds the target payload from the source data using the flow's
// mapping table. Absent source fields are skipped.
func (f ConversionFlow) Apply(sourceData map[string]any) (map[string]any, error) {
	payload := make(map[string]any, len(f.Mappings))
	for _, mapping := range f.Mappings {
		value, ok := sourceData[mapping.Source]
		if !ok || value == nil {
			continue
		}
		transformed, err := applyTransform(mapping.Transform, value)
		if err != nil {
			return nil, fmt.Errorf("map field %s -> %s: %w", mapping.Source, mapping.Target, err)
		}
		payload[mapping.Target] = transformed
	}
	return payload, nil
}

func applyTransform(transform FieldTransform, value any) (any, error) {
	switch transform {
	case "", TransformCopy:
		return value, nil
	case TransformCurrency:
		amount, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric", value)
		}
		return math.Round(amount*100) / 100, nil
	case TransformLineItems:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("value %T is not a list", value)
		}
		copied := make([]any, 0, len(items))
		for _, item := range items {
			if itemMap, ok := item.(map[string]any); ok {
				clone := make(map[string]any, len(itemMap))
				for k, v := range itemMap {
					clone[k] = v
				}
				copied = append(copied, clone)
				continue
			}
			copied = append(copied, item)
		}
		return copied, nil
	default:
		return nil, fmt.Errorf("unknown transform %s", transform)
	}
}

// Built-in lifecycle conversion flows. Tenants get these mapping tables out
// of the box; each is just data driving the generic conversion algorithm.
var (
	LeadToClient = ConversionFlow{
		Name:                 "lead_to_client",
		SourceModule:         "lead",
		TargetModule:         "client",
		SourceTerminalStatus: "Converted",
		TargetInitialStatus:  "Active",
		Mappings: []FieldMapping{
			{Source: "name", Target: "companyName"},
			{Source: "email", Target: "email"},
			{Source: "phone", Target: "phone"},
			{Source: "source", Target: "leadSource"},
		},
	}

	QuotationToOrder = ConversionFlow{
		Name:                 "quotation_to_order",
		SourceModule:         "quotation",
		TargetModule:         "order",
		SourceTerminalStatus: "Ordered",
		TargetInitialStatus:  "New",
		Mappings: []FieldMapping{
			{Source: "clientName", Target: "clientName"},
			{Source: "total", Target: "total", Transform: TransformCurrency},
			{Source: "currency", Target: "currency"},
			{Source: "lineItems", Target: "lineItems", Transform: TransformLineItems},
		},
	}

	OrderToInvoice = ConversionFlow{
		Name:                 "order_to_invoice",
		SourceModule:         "order",
		TargetModule:         "invoice",
		SourceTerminalStatus: "Invoiced",
		TargetInitialStatus:  "Draft",
		Mappings: []FieldMapping{
			{Source: "clientName", Target: "clientName"},
			{Source: "total", Target: "amount", Transform: TransformCurrency},
			{Source: "currency", Target: "currency"},
			{Source: "lineItems", Target: "lineItems", Transform: TransformLineItems},
		},
	}
)

// BuiltinFlows returns the default conversion flows in registration order.
func BuiltinFlows() []ConversionFlow {
	return []ConversionFlow{LeadToClient, QuotationToOrder, OrderToInvoice}
}
