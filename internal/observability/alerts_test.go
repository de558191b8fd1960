package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "facilitydesk.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var file alertFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var group *alertGroup
	for i := range file.Groups {
		if file.Groups[i].Name == "facilitydesk" {
			group = &file.Groups[i]
			break
		}
	}
	if group == nil {
		t.Fatal("facilitydesk alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"BackendErrorRate": {severity: "critical", runbook: "docs/runbook.md#backend-error-rate"},
		"SlowListLoads":    {severity: "warning", runbook: "docs/runbook.md#slow-list-loads"},
		"BulkItemFailures": {severity: "warning", runbook: "docs/runbook.md#bulk-item-failures"},
		"BulkJobsFailing":  {severity: "warning", runbook: "docs/runbook.md#bulk-jobs-failing"},
	}
	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}

	for _, rule := range group.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if !strings.Contains(rule.Expr, "facilitydesk_") {
			t.Fatalf("rule %s must query a facilitydesk metric", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}

func TestRunbookAnchorsExist(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	if err != nil {
		t.Fatalf("failed to read runbook: %v", err)
	}
	text := strings.ToLower(string(data))
	for _, heading := range []string{"## backend error rate", "## slow list loads", "## bulk item failures", "## bulk jobs failing"} {
		if !strings.Contains(text, heading) {
			t.Fatalf("runbook is missing section %q", heading)
		}
	}
}
