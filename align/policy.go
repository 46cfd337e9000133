package align

import (
	"context"
	"fmt"
	"strings"

	"github.com/tikz/localrmsd/compat"
)

// Policy decides what happens when two chains are likely incompatible.
type Policy int

const (
	// Abort cancels the analysis.
	Abort Policy = iota
	// Continue proceeds without asking.
	Continue
	// AskCaller defers to the engine's ConfirmFunc. Without one it aborts.
	AskCaller
)

var policyNames = map[Policy]string{
	Abort:     "abort",
	Continue:  "continue",
	AskCaller: "ask",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "abort", "continue" or "ask".
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range policyNames {
		if s == name {
			return p, nil
		}
	}
	return Abort, fmt.Errorf("unknown policy %q (want abort, continue or ask)", s)
}

// ConfirmFunc is asked whether to go on past a LikelyIncompatible verdict.
type ConfirmFunc func(ctx context.Context, res compat.Result) (bool, error)

// Outcome tells whether an analysis ran to completion.
type Outcome int

const (
	// Completed means the windows were measured.
	Completed Outcome = iota
	// Cancelled means the caller declined to proceed past the compatibility
	// gate. It is a valid result, not an error.
	Cancelled
)

func (o Outcome) String() string {
	if o == Cancelled {
		return "cancelled"
	}
	return "completed"
}

// MarshalText renders the outcome name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// proceed applies the policy to a compatibility result.
func (e *Engine) proceed(ctx context.Context, res compat.Result) (bool, error) {
	switch res.Verdict {
	case compat.Compatible:
		return true, nil
	case compat.Unverifiable:
		e.logger().Warn("chain compatibility cannot be verified, continuing",
			"a", res.A.StructureID, "chainA", res.A.ChainID, "accessionsA", res.AccessionsA,
			"b", res.B.StructureID, "chainB", res.B.ChainID, "accessionsB", res.AccessionsB)
		return true, nil
	}

	e.logger().Warn("chains map to disjoint accessions",
		"a", res.A.StructureID, "chainA", res.A.ChainID, "accessionsA", res.AccessionsA,
		"b", res.B.StructureID, "chainB", res.B.ChainID, "accessionsB", res.AccessionsB,
		"policy", e.Policy)

	switch e.Policy {
	case Continue:
		return true, nil
	case AskCaller:
		if e.Confirm == nil {
			return false, nil
		}
		ok, err := e.Confirm(ctx, res)
		if err != nil {
			return false, fmt.Errorf("confirm: %w", err)
		}
		return ok, nil
	}
	return false, nil
}
