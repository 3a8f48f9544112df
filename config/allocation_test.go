package config

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultAllocationConfig_KnownBranches(t *testing.T) {
	cfg := DefaultAllocationConfig()
	branches := cfg.Integricom.KnownBranches(cfg.HomeOffice)

	if branches[0] != "Home Office" {
		t.Fatalf("first branch = %q, want Home Office", branches[0])
	}
	want := 1 + len(cfg.Integricom.DistrictBranches) + len(cfg.Integricom.ExtraBranches)
	if len(branches) != want {
		t.Fatalf("got %d branches, want %d", len(branches), want)
	}

	seen := map[string]bool{}
	for _, branch := range branches {
		if seen[branch] {
			t.Fatalf("duplicate branch %q", branch)
		}
		seen[branch] = true
	}
	for _, required := range []string{"Sugar Hill", "Grayson", "St. Pete", "Fort Walton"} {
		if !seen[required] {
			t.Fatalf("missing branch %q", required)
		}
	}
}

func TestDefaultAllocationConfig_HexnodeDefaults(t *testing.T) {
	cfg := DefaultAllocationConfig()
	if !cfg.Hexnode.PerDeviceCost.Equal(decimal.NewFromFloat(2.00)) {
		t.Fatalf("per-device cost = %s, want 2.00", cfg.Hexnode.PerDeviceCost)
	}
	if cfg.Hexnode.BranchAliases["Default User"] != "Home Office" {
		t.Fatalf("Default User alias = %q", cfg.Hexnode.BranchAliases["Default User"])
	}
}

func TestDefaultAllocationConfig_WorkstationTokens(t *testing.T) {
	cfg := DefaultAllocationConfig()
	tokens := cfg.Integricom.DynamicLicenses["Workstation"]
	if len(tokens) != 5 {
		t.Fatalf("workstation tokens = %v", tokens)
	}
	found := false
	for _, token := range tokens {
		if token == "Microsoft 365 Business Premium" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Business Premium not a workstation token: %v", tokens)
	}
}

func TestDefaultAllocationConfig_ReviewThreshold(t *testing.T) {
	cfg := DefaultAllocationConfig()
	if cfg.Confidence.ReviewBelow != "medium" {
		t.Fatalf("review threshold = %q, want medium", cfg.Confidence.ReviewBelow)
	}
	if len(cfg.Confidence.Rules) == 0 {
		t.Fatal("no confidence rules configured")
	}
}

func TestAllocationConfig_JSONOverlayKeepsUnmentionedDefaults(t *testing.T) {
	cfg := DefaultAllocationConfig()
	overlay := `{"hexnode": {"per_device_cost": "2.50", "default_license": "Hexnode UEM Cloud Pro Edition", "branch_aliases": {"Default User": "Home Office"}}}`
	if err := json.Unmarshal([]byte(overlay), cfg); err != nil {
		t.Fatalf("overlay failed: %v", err)
	}

	if !cfg.Hexnode.PerDeviceCost.Equal(decimal.NewFromFloat(2.50)) {
		t.Fatalf("per-device cost = %s, want overridden 2.50", cfg.Hexnode.PerDeviceCost)
	}
	// Sections the overlay never mentions keep their defaults.
	if cfg.HomeOffice != "Home Office" {
		t.Fatalf("home office = %q", cfg.HomeOffice)
	}
	if len(cfg.Integricom.ForcedHomeOffice) == 0 {
		t.Fatal("overlay wiped the integricom defaults")
	}
}
