package pdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tikz/localrmsd/http"
)

// Reference: https://www.ebi.ac.uk/pdbe/api/doc/sifts.html

// DefaultSIFTSURL is the PDBe endpoint returning UniProt mappings for an entry.
const DefaultSIFTSURL = "https://www.ebi.ac.uk/pdbe/api/mappings/uniprot/"

// SIFTS represents a valid response from the SIFTS mapping project.
type SIFTS struct {
	UniProt map[string]*Accession `json:"UniProt"`
}

// Accession represents an UniProt accession.
type Accession struct {
	Identifier string     `json:"identifier"`
	Mappings   []*Mapping `json:"mappings"`
	Name       string     `json:"name"`
}

// Mapping represents position mappings between the database entry and the specific PDB.
type Mapping struct {
	PDBStart     *Position `json:"start"`
	EntityID     int64     `json:"entity_id"`
	PDBEnd       *Position `json:"end"`
	UnpStart     int64     `json:"unp_start"`
	UnpEnd       int64     `json:"unp_end"`
	ChainID      string    `json:"chain_id"`
	StructAsymID string    `json:"struct_asym_id"`
}

// Position represents the start or end position of a PDB.
type Position struct {
	ResidueNumber int64 `json:"residue_number"`
}

// GetSIFTSMappings retrieves the UniProt<->PDB mappings of an entry from
// baseURL (DefaultSIFTSURL when empty).
func GetSIFTSMappings(ctx context.Context, client *http.Client, baseURL string, pdbID string) (*SIFTS, error) {
	if baseURL == "" {
		baseURL = DefaultSIFTSURL
	}
	pdbID = strings.ToLower(pdbID)

	raw, err := client.Get(ctx, baseURL+pdbID)
	if err != nil {
		return nil, err
	}

	pdbs := make(map[string]json.RawMessage)
	err = json.Unmarshal(raw, &pdbs)
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	entry, ok := pdbs[pdbID]
	if !ok {
		return &SIFTS{}, nil
	}

	sifts := SIFTS{}
	err = json.Unmarshal(entry, &sifts)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", pdbID, err)
	}

	return &sifts, nil
}

// ChainAccessions returns the sorted UniProt accessions with at least one
// mapping segment on chain. Accessions are the keys of the UniProt map, not
// the entry names.
func (s *SIFTS) ChainAccessions(chain string) []string {
	chain = strings.TrimSpace(chain)

	var accs []string
	for acc, unp := range s.UniProt {
		for _, m := range unp.Mappings {
			if strings.TrimSpace(m.ChainID) == chain {
				accs = append(accs, acc)
				break
			}
		}
	}
	sort.Strings(accs)
	return accs
}

// SIFTSOracle answers which UniProt accessions map to a chain, using PDBe SIFTS.
type SIFTSOracle struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewSIFTSOracle returns an oracle using client against baseURL. Nil and
// empty arguments select the defaults.
func NewSIFTSOracle(client *http.Client, baseURL string, logger *slog.Logger) *SIFTSOracle {
	if client == nil {
		client = http.NewClient(http.DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = DefaultSIFTSURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SIFTSOracle{client: client, baseURL: baseURL, logger: logger}
}

// Accessions returns the accessions mapped to chain of pdbID. Lookup
// failures are logged and yield an empty list.
func (o *SIFTSOracle) Accessions(ctx context.Context, pdbID, chain string) []string {
	sifts, err := GetSIFTSMappings(ctx, o.client, o.baseURL, pdbID)
	if err != nil {
		o.logger.Warn("SIFTS lookup failed", "pdb", pdbID, "chain", chain, "error", err)
		return nil
	}
	return sifts.ChainAccessions(chain)
}
