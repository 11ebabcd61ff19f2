package pipeline

import "github.com/scbe-labs/gate/pkg/contracts"

// GateResult is the outcome of a single gate check. Rejection is an expected,
// frequent outcome, so it is a value, not an error.
type GateResult struct {
	Allowed bool             `json:"allowed"`
	Reason  contracts.Reason `json:"reason,omitempty"`
	Detail  string           `json:"detail,omitempty"`
}

// Accept returns a passing result.
func Accept() GateResult {
	return GateResult{Allowed: true}
}

// Reject returns a failing result with the stage's reason code. Detail is for
// the audit sink only; it never reaches the external response.
func Reject(reason contracts.Reason, detail string) GateResult {
	return GateResult{Allowed: false, Reason: reason, Detail: detail}
}
