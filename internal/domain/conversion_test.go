package domain

import "testing"

func TestConversionFlowApply(t *testing.T) {
	flow := QuotationToOrder

	lineItems := []any{
		map[string]any{"sku": "A-1", "qty": 2},
		map[string]any{"sku": "B-2", "qty": 1},
	}
	source := map[string]any{
		"clientName": "Acme",
		"total":      1234.5678,
		"currency":   "GBP",
		"lineItems":  lineItems,
		"internal":   "not mapped",
	}

	payload, err := flow.Apply(source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payload["clientName"] != "Acme" {
		t.Errorf("expected clientName copied, got %v", payload["clientName"])
	}
	if payload["total"] != 1234.57 {
		t.Errorf("expected currency rounded to 1234.57, got %v", payload["total"])
	}
	if _, ok := payload["internal"]; ok {
		t.Error("unmapped source fields must not leak into the target payload")
	}

	copied, ok := payload["lineItems"].([]any)
	if !ok || len(copied) != 2 {
		t.Fatalf("expected 2 copied line items, got %v", payload["lineItems"])
	}
	copied[0].(map[string]any)["qty"] = 99
	if lineItems[0].(map[string]any)["qty"] == 99 {
		t.Error("line items must be deep-copied, not aliased")
	}
}

func TestConversionFlowApplySkipsAbsentFields(t *testing.T) {
	payload, err := LeadToClient.Apply(map[string]any{"name": "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["companyName"] != "Acme" {
		t.Errorf("expected name mapped to companyName, got %v", payload["companyName"])
	}
	if _, ok := payload["email"]; ok {
		t.Error("absent source fields must be skipped, not written as nil")
	}
}

func TestConversionFlowApplyRejectsBadTransforms(t *testing.T) {
	flow := ConversionFlow{
		Name:     "bad",
		Mappings: []FieldMapping{{Source: "amount", Target: "amount", Transform: TransformCurrency}},
	}
	if _, err := flow.Apply(map[string]any{"amount": "not numeric"}); err == nil {
		t.Error("expected error for non-numeric currency value")
	}

	flow.Mappings[0].Transform = FieldTransform("exotic")
	if _, err := flow.Apply(map[string]any{"amount": 1}); err == nil {
		t.Error("expected error for unknown transform")
	}
}

func TestBuiltinFlowsTerminalStatuses(t *testing.T) {
	expected := map[string]string{
		"lead_to_client":     "Converted",
		"quotation_to_order": "Ordered",
		"order_to_invoice":   "Invoiced",
	}
	for _, flow := range BuiltinFlows() {
		want, ok := expected[flow.Name]
		if !ok {
			t.Errorf("unexpected builtin flow %s", flow.Name)
			continue
		}
		if flow.SourceTerminalStatus != want {
			t.Errorf("flow %s: expected terminal status %s, got %s", flow.Name, want, flow.SourceTerminalStatus)
		}
	}
}
