package pdb

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// AlphaCarbonName is the atom name used to represent each residue.
const AlphaCarbonName = "CA"

// ErrEmptyBackbone is returned when no residue of a chain qualifies for the backbone.
var ErrEmptyBackbone = errors.New("empty backbone")

// CoordinateSet is an ordered list of points paired 1:1 with the residues
// they were taken from.
type CoordinateSet struct {
	Points   []r3.Vec
	Residues []*Residue
}

// Len returns the number of points in the set.
func (c *CoordinateSet) Len() int {
	return len(c.Points)
}

// Positions returns the residue sequence numbers of the set.
func (c *CoordinateSet) Positions() []int64 {
	pos := make([]int64, len(c.Residues))
	for i, r := range c.Residues {
		pos[i] = r.Number
	}
	return pos
}

// Head returns the first n entries of the set. n larger than the set
// returns the whole set.
func (c *CoordinateSet) Head(n int) *CoordinateSet {
	if n > c.Len() {
		n = c.Len()
	}
	return &CoordinateSet{
		Points:   c.Points[:n:n],
		Residues: c.Residues[:n:n],
	}
}

// Backbone returns the alpha carbons of the standard residues of c, in
// chain order. Waters, ligands, non-standard residues and residues missing
// a CA atom are skipped.
func Backbone(c *Chain) (*CoordinateSet, error) {
	set := &CoordinateSet{}
	for _, res := range c.Residues {
		if !res.Standard {
			continue
		}
		ca, ok := res.AlphaCarbon()
		if !ok {
			continue
		}
		set.Points = append(set.Points, ca.Coord())
		set.Residues = append(set.Residues, res)
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: chain %q has no standard residue with a %s atom", ErrEmptyBackbone, c.ID, AlphaCarbonName)
	}

	return set, nil
}
