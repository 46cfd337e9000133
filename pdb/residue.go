package pdb

import (
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

var residueNames = [...][3]string{
	{"Alanine", "Ala", "A"},
	{"Arginine", "Arg", "R"},
	{"Asparagine", "Asn", "N"},
	{"Aspartic acid", "Asp", "D"},
	{"Cysteine", "Cys", "C"},
	{"Glutamic acid", "Glu", "E"},
	{"Glutamine", "Gln", "Q"},
	{"Glycine", "Gly", "G"},
	{"Histidine", "His", "H"},
	{"Isoleucine", "Ile", "I"},
	{"Leucine", "Leu", "L"},
	{"Lysine", "Lys", "K"},
	{"Methionine", "Met", "M"},
	{"Phenylalanine", "Phe", "F"},
	{"Proline", "Pro", "P"},
	{"Serine", "Ser", "S"},
	{"Threonine", "Thr", "T"},
	{"Tryptophan", "Trp", "W"},
	{"Tyrosine", "Tyr", "Y"},
	{"Valine", "Val", "V"},
}

// Residue represents a single residue from the PDB structure.
type Residue struct {
	Chain         string  `json:"chain"`
	Number        int64   `json:"number"`        // residue sequence number as in the ATOM columns
	InsertionCode string  `json:"insertionCode"` // empty when absent
	Hetero        bool    `json:"hetero"`        // built from HETATM records
	Name          string  `json:"-"`
	Name1         string  `json:"name1"`
	Name3         string  `json:"name3"`
	Standard      bool    `json:"standard"` // one of the 20 standard amino acids
	Atoms         []*Atom `json:"-"`        // at most one atom per name, in file order
}

// ResidueID identifies a residue within a chain.
type ResidueID struct {
	Number        int64
	InsertionCode string
	Hetero        bool
}

// Less orders residue IDs by number, then insertion code, then hetero flag.
func (id ResidueID) Less(o ResidueID) bool {
	if id.Number != o.Number {
		return id.Number < o.Number
	}
	if id.InsertionCode != o.InsertionCode {
		return id.InsertionCode < o.InsertionCode
	}
	return !id.Hetero && o.Hetero
}

// IsStandard returns true if the three letter code names one of the 20 standard aminoacids.
func IsStandard(name3 string) bool {
	s := titleCase(name3)
	for _, res := range residueNames {
		if res[1] == s {
			return true
		}
	}
	return false
}

// AminoacidNames receives a name and returns a 3-sized array of all the possible representations as a string.
func AminoacidNames(input string) (string, string, string) {
	s := titleCase(input)
	for _, res := range residueNames {
		for _, n := range res {
			if n == s {
				return res[0], res[1], res[2]
			}
		}
	}

	return input, "Unk", "X"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

// NewResidue constructs a new residue given a chain, position and aminoacid name.
// The name is case-insensitive and can be either a full aminoacid name, one or three letter abbreviation.
func NewResidue(chain string, pos int64, input string) *Residue {
	name, abbrv3, abbrv1 := AminoacidNames(input)

	res := &Residue{
		Chain:    chain,
		Number:   pos,
		Name:     name,
		Name1:    abbrv1,
		Name3:    abbrv3,
		Standard: IsStandard(input),
	}
	if abbrv1 == "X" {
		res.Name3 = strings.ToUpper(input)
	}

	return res
}

// ID returns the residue identifier within its chain.
func (r *Residue) ID() ResidueID {
	return ResidueID{Number: r.Number, InsertionCode: r.InsertionCode, Hetero: r.Hetero}
}

// Atom returns the atom with the given name.
func (r *Residue) Atom(name string) (*Atom, bool) {
	for _, a := range r.Atoms {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// AlphaCarbon returns the CA atom of the residue, if present.
func (r *Residue) AlphaCarbon() (*Atom, bool) {
	return r.Atom(AlphaCarbonName)
}

func (r *Residue) transformed(fn func(r3.Vec) r3.Vec) *Residue {
	cp := *r
	cp.Atoms = make([]*Atom, len(r.Atoms))
	for i, a := range r.Atoms {
		na := *a
		p := fn(a.Coord())
		na.X, na.Y, na.Z = p.X, p.Y, p.Z
		cp.Atoms[i] = &na
	}
	return &cp
}
