package config

import "testing"

func TestAllowActiveContractEdits_DefaultsOff(t *testing.T) {
	t.Setenv("CONTRACT_ALLOW_ACTIVE_EDIT", "")
	if AllowActiveContractEdits() {
		t.Fatalf("expected active-contract edits to be disabled by default")
	}
}

func TestAllowActiveContractEdits_OptIn(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " y "} {
		t.Setenv("CONTRACT_ALLOW_ACTIVE_EDIT", v)
		if !AllowActiveContractEdits() {
			t.Fatalf("expected %q to enable active-contract edits", v)
		}
	}
}

func TestContractAutoLinkDisabled_DefaultsOff(t *testing.T) {
	t.Setenv("CONTRACT_AUTOLINK_DISABLED", "")
	if ContractAutoLinkDisabled() {
		t.Fatalf("expected auto-link to be enabled by default")
	}
}
