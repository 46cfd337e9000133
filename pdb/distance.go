package pdb

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxCADistance is the longest CA-CA distance, in ångströms, still taken as
// a peptide bond between consecutive residues.
const MaxCADistance = 4.2

// Distance returns the distance between a pair of atoms.
func Distance(atom1 *Atom, atom2 *Atom) float64 {
	return r3.Norm(r3.Sub(atom1.Coord(), atom2.Coord()))
}

// Breaks returns the residue numbers that start a new segment of the set,
// i.e. whose CA is farther than MaxCADistance from the previous one.
// Positional pairing runs out of register after a break.
func (c *CoordinateSet) Breaks() []int64 {
	var (
		breaks []int64
		prev   *Atom
	)
	for _, res := range c.Residues {
		ca, ok := res.AlphaCarbon()
		if !ok {
			continue
		}
		if prev != nil && Distance(prev, ca) > MaxCADistance {
			breaks = append(breaks, res.Number)
		}
		prev = ca
	}
	return breaks
}
