package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

func TestValidatePatchJSONAcceptsWellFormedDocument(t *testing.T) {
	v := New()
	report := v.ValidatePatchJSON(`{
		"schemaVersion": "v1",
		"flows": {
			"rank": {
				"stages": {
					"rerank": {
						"modules": [{"id": "boosted", "use": "boost"}]
					}
				}
			}
		}
	}`)
	require.True(t, report.IsValid)
	require.Empty(t, report.Findings)
}

func TestValidatePatchJSONRejectsMalformedJSON(t *testing.T) {
	v := New()
	report := v.ValidatePatchJSON(`not json`)
	require.False(t, report.IsValid)
	require.Equal(t, "MALFORMED_JSON", report.Findings[0].Code)
}

func TestValidatePatchJSONRejectsUnsupportedSchemaVersion(t *testing.T) {
	v := New()
	report := v.ValidatePatchJSON(`{"schemaVersion":"v2","flows":{}}`)
	require.False(t, report.IsValid)
	requireHasCode(t, report, "UNSUPPORTED_SCHEMA_VERSION")
}

func TestValidatePatchJSONRejectsDuplicateModuleID(t *testing.T) {
	v := New()
	report := v.ValidatePatchJSON(`{
		"schemaVersion": "v1",
		"flows": {"rank": {"stages": {"rerank": {"modules": [
			{"id": "boosted", "use": "boost"},
			{"id": "boosted", "use": "boost"}
		]}}}}
	}`)
	require.False(t, report.IsValid)
	requireHasCode(t, report, "DUPLICATE_MODULE_ID")
}

func TestValidatePatchJSONRejectsOverdeepGateTree(t *testing.T) {
	v := New()
	nested := `{"type":"selector","name":"s"}`
	for i := 0; i < 11; i++ {
		nested = `{"type":"not","child":` + nested + `}`
	}
	report := v.ValidatePatchJSON(`{
		"schemaVersion": "v1",
		"flows": {"rank": {"stages": {"rerank": {"modules": [
			{"id": "boosted", "use": "boost", "gate": ` + nested + `}
		]}}}}
	}`)
	require.False(t, report.IsValid)
	requireHasCode(t, report, "GATE_NESTING_TOO_DEEP")
}

func requireHasCode(t *testing.T, report ports.ValidationReport, code string) {
	t.Helper()
	for _, f := range report.Findings {
		if f.Code == code {
			return
		}
	}
	var codes []string
	for _, f := range report.Findings {
		codes = append(codes, f.Code)
	}
	t.Fatalf("expected finding %q, got %s", code, strings.Join(codes, ","))
}
