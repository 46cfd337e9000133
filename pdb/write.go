package pdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// atomFormat lays out an ATOM/HETATM record over the 80 fixed columns.
const atomFormat = "%-6s%5d %-4s%1s%3s %1s%4d%1s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s%2s\n"

// Write writes the entry as PDB coordinate records. A non-empty chain
// restricts the output to that chain. MODEL records are only written for
// multi-model entries.
func (pdb *PDB) Write(w io.Writer, chain string) error {
	bw := bufio.NewWriter(w)
	multi := len(pdb.Models) > 1

	for _, m := range pdb.Models {
		if multi {
			fmt.Fprintf(bw, "MODEL     %4d\n", m.Number)
		}
		for _, c := range m.OrderedChains() {
			if chain != "" && c.ID != chain {
				continue
			}
			writeChain(bw, c)
		}
		if multi {
			fmt.Fprintln(bw, "ENDMDL")
		}
	}
	fmt.Fprintln(bw, "END")

	return bw.Flush()
}

// WriteFile writes the entry, or only chain when non-empty, to path.
func (pdb *PDB) WriteFile(path string, chain string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write PDB file: %w", err)
	}

	err = pdb.Write(f, chain)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write PDB file: %w", err)
	}

	return nil
}

func writeChain(w io.Writer, c *Chain) {
	var (
		last     *Residue
		lastName string
	)
	for _, res := range c.Residues {
		for _, a := range res.Atoms {
			record := "ATOM"
			if a.Het {
				record = "HETATM"
			}
			fmt.Fprintf(w, atomFormat,
				record, a.Number, atomName(a), a.AltLoc, a.Residue, a.Chain,
				a.ResidueNumber, a.InsertionCode, a.X, a.Y, a.Z,
				a.Occupancy, a.BFactor, a.Element, a.Charge)
		}
		if !res.Hetero && len(res.Atoms) > 0 {
			last = res
			lastName = res.Atoms[0].Residue
		}
	}
	if last != nil {
		fmt.Fprintf(w, "TER   %5s      %3s %1s%4d%1s\n", "", lastName, c.ID, last.Number, last.InsertionCode)
	}
}

// atomName aligns the name in columns 13-16: names of one-letter elements
// start in column 14.
func atomName(a *Atom) string {
	if len(a.Name) < 4 && len(a.Element) == 1 {
		return " " + a.Name
	}
	return a.Name
}
