package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
service:
  name: specfleet
  data_dir: /var/lib/specfleet
engine:
  mode: debug
  poll_interval: 5s
  spec_done_timeout: 30m
sites:
  - name: wis
    project: mast
    domain: example.org
    local: true
    spec_host: mast-spec
    deployed_units: ["1-3", "7"]
    planned_units: "4-6"
    buildings:
      - names: [north]
        unit_ids: ["1", "2"]
      - names: [south]
        unit_ids: ["3", "7"]
  - name: ns
    project: ns
    domain: example.net
    spec_host: ns-spec
    deployed_units: "17"
`

func mustParse(t *testing.T) *Config {
	t.Helper()
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cfg
}

func TestParseAndNormalize(t *testing.T) {
	cfg := mustParse(t)

	if !cfg.Debug() {
		t.Error("Expected debug mode")
	}
	if cfg.Engine.PollInterval != 5*time.Second {
		t.Errorf("Expected 5s poll interval, got %v", cfg.Engine.PollInterval)
	}
	if cfg.Engine.SpecDoneTimeout != 30*time.Minute {
		t.Errorf("Expected 30m spec done timeout, got %v", cfg.Engine.SpecDoneTimeout)
	}
	// Defaults survive partial engine config.
	if cfg.Engine.UnitPort != 8000 {
		t.Errorf("Expected default unit port, got %d", cfg.Engine.UnitPort)
	}

	site, err := cfg.LocalSite()
	if err != nil {
		t.Fatalf("LocalSite: %v", err)
	}
	if site.Name != "wis" {
		t.Errorf("Expected local site wis, got %s", site.Name)
	}

	want := []string{"mast01", "mast02", "mast03", "mast07"}
	if len(site.DeployedUnits) != len(want) {
		t.Fatalf("Expected %v, got %v", want, site.DeployedUnits)
	}
	for i, u := range want {
		if site.DeployedUnits[i] != u {
			t.Errorf("Unit %d: expected %s, got %s", i, u, site.DeployedUnits[i])
		}
	}

	if got := site.Buildings[1].Units(); len(got) != 2 || got[0] != "mast03" || got[1] != "mast07" {
		t.Errorf("Building units not normalized: %v", got)
	}

	ns, err := cfg.SiteByName("ns")
	if err != nil {
		t.Fatalf("SiteByName: %v", err)
	}
	if len(ns.DeployedUnits) != 1 || ns.DeployedUnits[0] != "ns17" {
		t.Errorf("Scalar specifier not normalized: %v", ns.DeployedUnits)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no sites", "service:\n  data_dir: /tmp\n"},
		{"bad mode", `
service:
  data_dir: /tmp
engine:
  mode: dry-run
sites:
  - name: wis
    project: mast
    local: true
`},
		{"bad range", `
service:
  data_dir: /tmp
sites:
  - name: wis
    project: mast
    local: true
    deployed_units: "9-3"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("Expected parse failure")
			}
		})
	}
}

func TestEndpointConstruction(t *testing.T) {
	cfg := mustParse(t)
	site, _ := cfg.LocalSite()

	ep := cfg.UnitEndpoint(site, "mast03")
	if ep.Hostname != "mast03" || ep.Domain != "example.org" {
		t.Errorf("Unexpected unit endpoint: %+v", ep)
	}
	if ep.Port != 8000 || ep.BasePath != "/api/v1" {
		t.Errorf("Defaults not applied: %+v", ep)
	}

	spec, err := cfg.SpecEndpoint(site)
	if err != nil {
		t.Fatalf("SpecEndpoint: %v", err)
	}
	if spec.Hostname != "mast-spec" {
		t.Errorf("Unexpected spec host: %s", spec.Hostname)
	}

	noSpec := &Site{Name: "bare"}
	if _, err := cfg.SpecEndpoint(noSpec); err == nil {
		t.Error("Expected error for a site without a spec host")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specfleet.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service.DataDir != "/var/lib/specfleet" {
		t.Errorf("Unexpected data dir: %s", cfg.Service.DataDir)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
