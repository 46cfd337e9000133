// Package compat flags chain pairs that are unlikely to be the same
// biological molecule, by comparing the sequence database accessions mapped
// to each chain.
package compat

import (
	"context"
	"sort"
)

// Verdict is the outcome of a compatibility check.
type Verdict int

const (
	// Compatible chains share at least one accession.
	Compatible Verdict = iota
	// Unverifiable means at least one chain has no known accession.
	Unverifiable
	// LikelyIncompatible chains map to disjoint accession sets.
	LikelyIncompatible
)

func (v Verdict) String() string {
	switch v {
	case Compatible:
		return "compatible"
	case Unverifiable:
		return "unverifiable"
	case LikelyIncompatible:
		return "likely incompatible"
	}
	return "unknown"
}

// MarshalText renders the verdict name in JSON and logs.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Oracle returns the accessions known to map to a chain of a structure.
// An unknown chain or an unreachable service yields an empty list.
type Oracle interface {
	Accessions(ctx context.Context, structureID, chainID string) []string
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, structureID, chainID string) []string

// Accessions calls f.
func (f OracleFunc) Accessions(ctx context.Context, structureID, chainID string) []string {
	return f(ctx, structureID, chainID)
}

// Ref names one chain of one structure.
type Ref struct {
	StructureID string `json:"structureId"`
	ChainID     string `json:"chainId"`
}

// Result carries the verdict and the accession sets it was based on.
type Result struct {
	Verdict     Verdict  `json:"verdict"`
	A           Ref      `json:"a"`
	B           Ref      `json:"b"`
	AccessionsA []string `json:"accessionsA"`
	AccessionsB []string `json:"accessionsB"`
	Shared      []string `json:"shared,omitempty"`
}

// Check queries oracle for both chains and compares the answers.
func Check(ctx context.Context, oracle Oracle, a, b Ref) Result {
	res := Result{
		A:           a,
		B:           b,
		AccessionsA: dedup(oracle.Accessions(ctx, a.StructureID, a.ChainID)),
		AccessionsB: dedup(oracle.Accessions(ctx, b.StructureID, b.ChainID)),
	}
	res.Verdict, res.Shared = Compare(res.AccessionsA, res.AccessionsB)
	return res
}

// Compare returns the verdict for two accession sets and their intersection.
func Compare(a, b []string) (Verdict, []string) {
	if len(a) == 0 || len(b) == 0 {
		return Unverifiable, nil
	}

	in := make(map[string]bool, len(a))
	for _, acc := range a {
		in[acc] = true
	}
	var shared []string
	for _, acc := range dedup(b) {
		if in[acc] {
			shared = append(shared, acc)
		}
	}
	if len(shared) == 0 {
		return LikelyIncompatible, nil
	}
	return Compatible, shared
}

// dedup returns the sorted distinct non-empty entries of accs.
func dedup(accs []string) []string {
	seen := make(map[string]bool, len(accs))
	out := make([]string, 0, len(accs))
	for _, acc := range accs {
		if acc == "" || seen[acc] {
			continue
		}
		seen[acc] = true
		out = append(out, acc)
	}
	sort.Strings(out)
	return out
}
