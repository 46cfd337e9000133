package uniprot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tikz/localrmsd/http"
)

// DefaultBestStructuresURL is the PDBe SIFTS endpoint ranking the
// structures of an accession.
const DefaultBestStructuresURL = "https://www.ebi.ac.uk/pdbe/api/mappings/best_structures/"

type SIFTSBestStructures struct {
	PDBID      string  `json:"pdb_id"`
	ChainID    string  `json:"chain_id"`
	Resolution float64 `json:"resolution"`
	Method     string  `json:"experimental_method"`
	Coverage   float64 `json:"coverage"`
}

// BestStructures retrieves the available structures for a given UniProt ID,
// best first. An accession without structures yields an empty list.
func (c *Client) BestStructures(ctx context.Context, accession string) ([]PDB, error) {
	accession = strings.ToUpper(strings.TrimSpace(accession))

	raw, err := c.client.Get(ctx, c.siftsURL+accession)
	if err != nil {
		var se *http.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return []PDB{}, nil
		}
		return nil, fmt.Errorf("SIFTS best structures %s: %w", accession, err)
	}

	unps := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &unps); err != nil { // empty JSON, no crystals
		return []PDB{}, nil
	}

	var structures []SIFTSBestStructures
	if entry, ok := unps[accession]; ok {
		if err := json.Unmarshal(entry, &structures); err != nil {
			return nil, fmt.Errorf("unmarshal UniProt keys: %w", err)
		}
	}

	byID := make(map[string]int)
	uniqueStructures := []PDB{}
	for _, s := range structures {
		id := strings.ToUpper(s.PDBID)
		if i, ok := byID[id]; ok {
			uniqueStructures[i].Chains += "," + s.ChainID
			continue
		}
		byID[id] = len(uniqueStructures)
		uniqueStructures = append(uniqueStructures, PDB{
			ID:         id,
			Chains:     s.ChainID,
			Coverage:   s.Coverage,
			Method:     s.Method,
			Resolution: s.Resolution,
		})
	}

	return uniqueStructures, nil
}
