package prompt

import (
	"strings"
	"testing"

	"github.com/voicecollect/callcore/types"
)

func testDebtor() types.DebtorContext {
	return types.DebtorContext{
		DebtorID:     "d-123",
		Name:         "Jordan Lee",
		CompanyName:  "Meridian Finance",
		AmountCents:  150050,
		DueDate:      "2026-09-15",
		AccountLast4: "4821",
	}
}

func TestRender_SubstitutesAndResolvesNested(t *testing.T) {
	vars := map[string]string{
		"greeting": "Hello {{name}}",
		"name":     "Jordan",
	}
	got, err := Render("{{greeting}}, welcome.", vars)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Hello Jordan, welcome." {
		t.Errorf("Render() = %q", got)
	}
}

func TestRender_FailsOnUnresolvedPlaceholder(t *testing.T) {
	_, err := Render("Hello {{name}}", map[string]string{})
	if err == nil {
		t.Fatal("expected error for unresolved placeholder")
	}
	if !strings.Contains(err.Error(), "{{name}}") {
		t.Errorf("error %q does not name the placeholder", err)
	}
}

func TestSystem_RendersStageVariants(t *testing.T) {
	tests := []struct {
		stage    types.DelinquencyStage
		wantTone string
	}{
		{types.StagePreDelinquency, "courtesy call"},
		{types.StageEarlyDelinquency, "slightly overdue"},
		{types.StageLateDelinquency, "significantly overdue"},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			got, err := System(tt.stage, testDebtor())
			if err != nil {
				t.Fatalf("System() error = %v", err)
			}
			for _, want := range []string{"Jordan Lee", "Meridian Finance", "$1500.50", "4821", tt.wantTone} {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q", want)
				}
			}
			if strings.Contains(got, "{{") {
				t.Error("prompt contains unresolved placeholders")
			}
		})
	}
}

func TestSystem_UnknownStage(t *testing.T) {
	if _, err := System(types.DelinquencyStage("bogus"), testDebtor()); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestReprompt_NamesFailureReason(t *testing.T) {
	got := Reprompt("promise due date must be after the call date")
	if !strings.Contains(got, "promise due date must be after the call date") {
		t.Errorf("reprompt %q does not carry the reason", got)
	}
	if !strings.Contains(got, "JSON") {
		t.Error("reprompt should restate the output contract")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{150050, "1500.50"},
		{100, "1.00"},
		{5, "0.05"},
	}
	for _, tt := range tests {
		if got := formatCents(tt.cents); got != tt.want {
			t.Errorf("formatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
