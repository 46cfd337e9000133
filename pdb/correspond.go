package pdb

import (
	"sort"
)

// Two correspondence rules pair residues of two chains. They give different
// numbers on the same input and are kept apart on purpose.

// Truncate pairs two backbones by index: both are cut to the shorter length,
// keeping the starting residues aligned. No gap or insertion alignment is
// done, so chains whose numbering is offset are compared out of register.
func Truncate(a, b *CoordinateSet) (*CoordinateSet, *CoordinateSet) {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	return a.Head(n), b.Head(n)
}

// MatchResidueNumbers pairs the CA atoms of a and b that share a residue
// identifier (number, insertion code, hetero flag). Any residue with a CA
// atom takes part. Pairs are sorted by residue identifier.
func MatchResidueNumbers(a, b *Chain) (*CoordinateSet, *CoordinateSet) {
	caB := make(map[ResidueID]*Residue)
	for _, res := range b.Residues {
		if _, ok := res.AlphaCarbon(); ok {
			caB[res.ID()] = res
		}
	}

	type pair struct {
		ra, rb *Residue
	}
	var pairs []pair
	for _, ra := range a.Residues {
		if _, ok := ra.AlphaCarbon(); !ok {
			continue
		}
		if rb, ok := caB[ra.ID()]; ok {
			pairs = append(pairs, pair{ra, rb})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].ra.ID().Less(pairs[j].ra.ID())
	})

	setA := &CoordinateSet{}
	setB := &CoordinateSet{}
	for _, p := range pairs {
		ca, _ := p.ra.AlphaCarbon()
		cb, _ := p.rb.AlphaCarbon()
		setA.Points = append(setA.Points, ca.Coord())
		setA.Residues = append(setA.Residues, p.ra)
		setB.Points = append(setB.Points, cb.Coord())
		setB.Residues = append(setB.Residues, p.rb)
	}

	return setA, setB
}
