package uniprot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tikz/localrmsd/http"
)

// DefaultBaseURL is the UniProt REST API root.
const DefaultBaseURL = "https://rest.uniprot.org/"

// ErrNotFound is returned when UniProt has no entry for an accession.
var ErrNotFound = errors.New("accession not found")

// https://www.uniprot.org/help/accession_numbers
var accessionRegex = regexp.MustCompile(`^([OPQ][0-9][A-Z0-9]{3}[0-9]|[A-NR-Z][0-9]([A-Z][A-Z0-9]{2}[0-9]){1,2})$|^A0A[A-Z0-9]{7}$`)

// IsAccession reports whether s is syntactically a UniProt accession.
func IsAccession(s string) bool {
	return accessionRegex.MatchString(s)
}

// UniProt contains relevant protein data for a single accession.
type UniProt struct {
	ID       string   `json:"id"`       // accession ID
	Name     string   `json:"name"`     // entry name, e.g. INS_HUMAN
	URL      string   `json:"url"`      // page URL for the entry
	JSONURL  string   `json:"jsonUrl"`  // REST URL for the entry
	Protein  string   `json:"protein"`  // recommended protein name
	Gene     string   `json:"gene"`     // gene code
	Organism string   `json:"organism"` // organism
	Sequence string   `json:"sequence"` // canonical sequence
	PDBs     []PDB    `json:"pdbs"`     // PDB cross references
	Pfam     []string `json:"pfam"`     // Pfam families accessions
	Raw      []byte   `json:"-"`        // JSON API raw bytes
}

// PDB is a structure cross referenced from an entry.
type PDB struct {
	ID         string  `json:"id"`
	Method     string  `json:"method"`
	Resolution float64 `json:"resolution,omitempty"` // 0 when not reported
	Chains     string  `json:"chains,omitempty"`     // e.g. "A/C=25-54"
	Coverage   float64 `json:"coverage,omitempty"`   // SIFTS best structures only
}

// Client queries UniProt and the PDBe SIFTS best structures endpoint.
type Client struct {
	client   *http.Client
	baseURL  string
	siftsURL string
}

// NewClient returns a client using c against baseURL and siftsURL. Nil and
// empty arguments select the defaults.
func NewClient(c *http.Client, baseURL, siftsURL string) *Client {
	if c == nil {
		c = http.NewClient(http.DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if siftsURL == "" {
		siftsURL = DefaultBestStructuresURL
	}
	return &Client{client: c, baseURL: baseURL, siftsURL: siftsURL}
}

type entryJSON struct {
	PrimaryAccession   string `json:"primaryAccession"`
	UniProtkbID        string `json:"uniProtkbId"`
	ProteinDescription struct {
		RecommendedName struct {
			FullName struct {
				Value string `json:"value"`
			} `json:"fullName"`
		} `json:"recommendedName"`
	} `json:"proteinDescription"`
	Genes []struct {
		GeneName struct {
			Value string `json:"value"`
		} `json:"geneName"`
	} `json:"genes"`
	Organism struct {
		ScientificName string `json:"scientificName"`
	} `json:"organism"`
	Sequence struct {
		Value  string `json:"value"`
		Length int    `json:"length"`
	} `json:"sequence"`
	CrossReferences []struct {
		Database   string `json:"database"`
		ID         string `json:"id"`
		Properties []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"properties"`
	} `json:"uniProtKBCrossReferences"`
}

// Entry fetches the entry for accession.
func (c *Client) Entry(ctx context.Context, accession string) (*UniProt, error) {
	accession = strings.ToUpper(strings.TrimSpace(accession))
	jsonURL := c.baseURL + "uniprotkb/" + accession + ".json"

	raw, err := c.client.Get(ctx, jsonURL)
	if err != nil {
		var se *http.StatusError
		if errors.As(err, &se) && (se.NotFound() || se.Code == 400) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, accession)
		}
		return nil, fmt.Errorf("get UniProt accession %s: %w", accession, err)
	}

	u := &UniProt{
		ID:      accession,
		URL:     "https://www.uniprot.org/uniprotkb/" + accession,
		JSONURL: jsonURL,
		Raw:     raw,
	}
	if err := u.extract(); err != nil {
		return nil, fmt.Errorf("extract UniProt entry %s: %w", accession, err)
	}

	return u, nil
}

// extract parses the JSON response.
func (u *UniProt) extract() error {
	var e entryJSON
	if err := json.Unmarshal(u.Raw, &e); err != nil {
		return err
	}

	if e.PrimaryAccession != "" {
		u.ID = e.PrimaryAccession
	}
	u.Name = e.UniProtkbID
	u.Protein = e.ProteinDescription.RecommendedName.FullName.Value
	if len(e.Genes) > 0 {
		u.Gene = e.Genes[0].GeneName.Value
	}
	u.Organism = e.Organism.ScientificName
	u.Sequence = e.Sequence.Value

	for _, x := range e.CrossReferences {
		switch x.Database {
		case "PDB":
			p := PDB{ID: strings.ToUpper(x.ID)}
			for _, prop := range x.Properties {
				switch prop.Key {
				case "Method":
					p.Method = prop.Value
				case "Resolution":
					p.Resolution = parseResolution(prop.Value)
				case "Chains":
					p.Chains = prop.Value
				}
			}
			u.PDBs = append(u.PDBs, p)
		case "Pfam":
			u.Pfam = append(u.Pfam, x.ID)
		}
	}

	return nil
}

// parseResolution reads values like "1.50 A"; "-" and empty yield 0.
func parseResolution(s string) float64 {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	r, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return 0
	}
	return r
}
