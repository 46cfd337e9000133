package pdb

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrChainNotFound is returned when a requested chain is not in the structure.
	ErrChainNotFound = errors.New("chain not found")

	// ErrNoCommonChain is returned when two structures share no chain identifier.
	ErrNoCommonChain = errors.New("no common chain")
)

// Chain is a chain identifier and its residues in file order.
type Chain struct {
	ID       string     `json:"id"`
	Residues []*Residue `json:"-"`
}

// NewChain returns a chain holding residues.
func NewChain(id string, residues ...*Residue) *Chain {
	return &Chain{ID: id, Residues: residues}
}

func (c *Chain) transformed(fn func(r3.Vec) r3.Vec) *Chain {
	cp := &Chain{ID: c.ID, Residues: make([]*Residue, len(c.Residues))}
	for i, r := range c.Residues {
		cp.Residues[i] = r.transformed(fn)
	}
	return cp
}

// ResolveChains picks the chains of a and b to compare, using the first
// model of each entry. An empty identifier means "not requested".
//
// With both identifiers given, both must exist. Otherwise the chain sets of
// both entries are intersected (a requested side contributes only its own
// identifier, which must exist) and the identifier that sorts first is used
// for both sides.
func ResolveChains(a, b *PDB, chainA, chainB string) (string, string, error) {
	ma, mb := a.FirstModel(), b.FirstModel()

	if chainA != "" {
		if _, ok := ma.Chain(chainA); !ok {
			return "", "", fmt.Errorf("%w: chain %q in %s (available: %v)", ErrChainNotFound, chainA, a.ID, ma.ChainIDs())
		}
	}
	if chainB != "" {
		if _, ok := mb.Chain(chainB); !ok {
			return "", "", fmt.Errorf("%w: chain %q in %s (available: %v)", ErrChainNotFound, chainB, b.ID, mb.ChainIDs())
		}
	}
	if chainA != "" && chainB != "" {
		return chainA, chainB, nil
	}

	idsA := []string{chainA}
	if chainA == "" {
		idsA = ma.ChainIDs()
	}
	idsB := []string{chainB}
	if chainB == "" {
		idsB = mb.ChainIDs()
	}

	common := intersect(idsA, idsB)
	if len(common) == 0 {
		return "", "", fmt.Errorf("%w: %s %v and %s %v", ErrNoCommonChain, a.ID, idsA, b.ID, idsB)
	}

	return common[0], common[0], nil
}

// intersect returns the sorted identifiers present in both lists.
func intersect(a, b []string) []string {
	in := make(map[string]bool, len(a))
	for _, id := range a {
		in[id] = true
	}

	var common []string
	seen := make(map[string]bool)
	for _, id := range b {
		if in[id] && !seen[id] {
			common = append(common, id)
			seen[id] = true
		}
	}
	sort.Strings(common)
	return common
}
