package pdb

import (
	"bufio"
	"bytes"
	"errors"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Atom represents a single atom in the structure.
// It contains all the columns from an ATOM or HETATM record in a PDB file.
type Atom struct {
	// PDB columns for the ATOM tag
	Number        int64
	Name          string
	AltLoc        string
	Residue       string
	Chain         string
	ResidueNumber int64
	InsertionCode string
	X             float64
	Y             float64
	Z             float64
	Occupancy     float64
	BFactor       float64
	Element       string
	Charge        string

	Het bool // true for HETATM records
}

// Coord returns the atom position.
func (a *Atom) Coord() r3.Vec {
	return r3.Vec{X: a.X, Y: a.Y, Z: a.Z}
}

// recordLen is the width of a full coordinate record.
const recordLen = 80

// ExtractModels parses MODEL, ATOM and HETATM records into models, chains
// and residues. Entries without MODEL records get a single model numbered 1.
// Only the first listed alternate location of an atom name is kept per
// residue, whatever its occupancy.
func (pdb *PDB) ExtractModels(rawPDB []byte) error {
	var (
		models  []*Model
		current *Model
		index   map[string]map[ResidueID]*Residue
	)

	newModel := func(num int) {
		current = &Model{Number: num, Chains: make(map[string]*Chain)}
		index = make(map[string]map[ResidueID]*Residue)
		models = append(models, current)
	}

	hets := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(rawPDB))
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 6 {
			continue
		}

		// https://www.wwpdb.org/documentation/file-format-content/format33/sect9.html
		switch strings.TrimSpace(line[0:6]) {
		case "MODEL":
			num, _ := strconv.Atoi(strings.TrimSpace(pad(line)[10:14]))
			newModel(num)
		case "ENDMDL":
			current = nil
		case "ATOM", "HETATM":
			atom, err := parseAtomRecord(line)
			if err != nil {
				return err
			}
			if current == nil {
				newModel(len(models) + 1)
			}
			if atom.Het && !hets[atom.Residue] {
				hets[atom.Residue] = true
				pdb.HetGroups = append(pdb.HetGroups, atom.Residue)
			}
			current.addAtom(index, atom)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	var kept []*Model
	for _, m := range models {
		if len(m.Chains) > 0 {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return errors.New("atoms not found")
	}

	pdb.Models = kept
	return nil
}

func (m *Model) addAtom(index map[string]map[ResidueID]*Residue, atom *Atom) {
	chain, ok := m.Chains[atom.Chain]
	if !ok {
		chain = &Chain{ID: atom.Chain}
		m.Chains[atom.Chain] = chain
		m.order = append(m.order, atom.Chain)
		index[atom.Chain] = make(map[ResidueID]*Residue)
	}

	id := ResidueID{Number: atom.ResidueNumber, InsertionCode: atom.InsertionCode, Hetero: atom.Het}
	res, ok := index[atom.Chain][id]
	if !ok {
		res = NewResidue(atom.Chain, atom.ResidueNumber, atom.Residue)
		res.InsertionCode = atom.InsertionCode
		res.Hetero = atom.Het
		index[atom.Chain][id] = res
		chain.Residues = append(chain.Residues, res)
	}

	// first altloc wins, not the most occupied one
	if _, dup := res.Atom(atom.Name); dup {
		return
	}
	res.Atoms = append(res.Atoms, atom)
}

func parseAtomRecord(line string) (*Atom, error) {
	if len(line) < 54 {
		return nil, errors.New("truncated coordinate record: " + line)
	}
	line = pad(line)

	var atom Atom
	var err error

	atom.Het = strings.TrimSpace(line[0:6]) == "HETATM"
	atom.Number, _ = strconv.ParseInt(strings.TrimSpace(line[6:11]), 10, 64)
	atom.Name = strings.TrimSpace(line[12:16])
	atom.AltLoc = strings.TrimSpace(line[16:17])
	atom.Residue = strings.TrimSpace(line[17:20])
	atom.Chain = line[21:22]
	atom.ResidueNumber, err = strconv.ParseInt(strings.TrimSpace(line[22:26]), 10, 64)
	if err != nil {
		return nil, errors.New("invalid residue number: " + line[22:26])
	}
	atom.InsertionCode = strings.TrimSpace(line[26:27])

	atom.X, err = strconv.ParseFloat(strings.TrimSpace(line[30:38]), 64)
	if err != nil {
		return nil, errors.New("invalid X coordinate: " + line[30:38])
	}
	atom.Y, err = strconv.ParseFloat(strings.TrimSpace(line[38:46]), 64)
	if err != nil {
		return nil, errors.New("invalid Y coordinate: " + line[38:46])
	}
	atom.Z, err = strconv.ParseFloat(strings.TrimSpace(line[46:54]), 64)
	if err != nil {
		return nil, errors.New("invalid Z coordinate: " + line[46:54])
	}

	atom.Occupancy, _ = strconv.ParseFloat(strings.TrimSpace(line[54:60]), 64)
	atom.BFactor, _ = strconv.ParseFloat(strings.TrimSpace(line[60:66]), 64)
	atom.Element = strings.TrimSpace(line[76:78])
	atom.Charge = strings.TrimSpace(line[78:80])

	return &atom, nil
}

// pad right-pads short records so fixed columns can be sliced safely.
func pad(line string) string {
	if len(line) >= recordLen {
		return line
	}
	return line + strings.Repeat(" ", recordLen-len(line))
}
