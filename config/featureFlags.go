package config

import (
	"os"
	"strings"
)

// ContractAutoLinkDisabled turns off the best-effort defaulting of a
// purchase order line's contract line from the supplier's active contracts.
// Validation of explicitly linked lines is unaffected.
//
// Set via env:
// - CONTRACT_AUTOLINK_DISABLED=true
func ContractAutoLinkDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CONTRACT_AUTOLINK_DISABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AllowActiveContractEdits relaxes the draft-only edit rule: with the flag
// set, Active contracts still accept changes to notes and end date so a
// running agreement can be annotated, extended or closed early. Without it
// every non-Draft contract is frozen.
//
// Set via env:
// - CONTRACT_ALLOW_ACTIVE_EDIT=true
func AllowActiveContractEdits() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CONTRACT_ALLOW_ACTIVE_EDIT")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
