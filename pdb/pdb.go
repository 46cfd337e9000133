package pdb

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tikz/localrmsd/http"
)

// ErrUnavailable is returned when a structure cannot be retrieved or its
// payload is missing, empty or holds no coordinates.
var ErrUnavailable = errors.New("structure unavailable")

// DefaultRCSBURL is the download prefix for PDB format entries.
const DefaultRCSBURL = "https://files.rcsb.org/download/"

// PDB represents a single parsed structure entry.
type PDB struct {
	ID     string `json:"id"`     // PDB ID, or file name for local entries
	PDBURL string `json:"pdbUrl"` // RCSB download URL for the PDB file

	Classification string     `json:"classification"` // HEADER classification
	Title          string     `json:"title"`          // TITLE records joined
	Date           *time.Time `json:"date"`           // deposition date
	Method         string     `json:"method"`         // EXPDTA experimental method
	Resolution     float64    `json:"resolution"`     // REMARK 2 resolution, 0 when absent

	HetGroups []string `json:"hetGroups"` // HET groups in the structure

	Models []*Model `json:"-"` // MODEL records, the first one is used for analysis

	RawPDB []byte `json:"-"` // PDB file raw data
}

// Model is one coordinate model of an entry.
type Model struct {
	Number int               `json:"number"`
	Chains map[string]*Chain `json:"chains"`
	order  []string
}

// NewPDBFromRaw constructs a new instance from raw PDB format bytes.
func NewPDBFromRaw(raw []byte) (*PDB, error) {
	pdb := &PDB{RawPDB: raw}

	err := pdb.Parse()
	if err != nil {
		return nil, err
	}

	return pdb, nil
}

// NewPDBFromFile reads and parses a local PDB file. The file name without
// extension becomes the entry ID.
func NewPDBFromFile(path string) (*PDB, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, err)
	}

	pdb, err := NewPDBFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if pdb.ID == "" {
		pdb.ID = fileID(path)
	}

	return pdb, nil
}

// NewPDBFromID fetches the entry from RCSB with the default client and parses it.
func NewPDBFromID(ctx context.Context, pdbID string) (*PDB, error) {
	return NewFetcher(nil, "").Structure(ctx, pdbID)
}

// Parse parses the raw PDB text.
func (pdb *PDB) Parse() error {
	if len(strings.TrimSpace(string(pdb.RawPDB))) == 0 {
		return fmt.Errorf("%w: empty payload", ErrUnavailable)
	}

	err := pdb.ExtractModels(pdb.RawPDB)
	if err != nil {
		return fmt.Errorf("%w: extract atoms: %w", ErrUnavailable, err)
	}

	pdb.ExtractHeader(pdb.RawPDB)

	return nil
}

// FirstModel returns the model used for analysis, nil if the entry has none.
func (pdb *PDB) FirstModel() *Model {
	if len(pdb.Models) == 0 {
		return nil
	}
	return pdb.Models[0]
}

// NewModel builds a model from chains, keeping their order.
func NewModel(number int, chains ...*Chain) *Model {
	m := &Model{Number: number, Chains: make(map[string]*Chain, len(chains))}
	for _, c := range chains {
		if _, ok := m.Chains[c.ID]; !ok {
			m.order = append(m.order, c.ID)
		}
		m.Chains[c.ID] = c
	}
	return m
}

// Chain returns the chain with the given identifier.
func (m *Model) Chain(id string) (*Chain, bool) {
	if m == nil {
		return nil, false
	}
	c, ok := m.Chains[id]
	return c, ok
}

// ChainIDs returns the chain identifiers of the model, sorted.
func (m *Model) ChainIDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.Chains))
	for id := range m.Chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OrderedChains returns the chains in file order.
func (m *Model) OrderedChains() []*Chain {
	chains := make([]*Chain, 0, len(m.order))
	for _, id := range m.order {
		chains = append(chains, m.Chains[id])
	}
	return chains
}

// Transformed returns a deep copy of the entry with every atom coordinate
// replaced by fn(coordinate). The receiver is left untouched.
func (pdb *PDB) Transformed(fn func(r3.Vec) r3.Vec) *PDB {
	cp := *pdb
	cp.HetGroups = append([]string(nil), pdb.HetGroups...)
	cp.RawPDB = nil
	cp.Models = make([]*Model, len(pdb.Models))
	for i, m := range pdb.Models {
		nm := &Model{
			Number: m.Number,
			Chains: make(map[string]*Chain, len(m.Chains)),
			order:  append([]string(nil), m.order...),
		}
		for id, c := range m.Chains {
			nm.Chains[id] = c.transformed(fn)
		}
		cp.Models[i] = nm
	}
	return &cp
}

// Fetcher downloads entries from RCSB.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher returns a fetcher using client against baseURL. Nil and empty
// arguments select the defaults.
func NewFetcher(client *http.Client, baseURL string) *Fetcher {
	if client == nil {
		client = http.NewClient(http.DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = DefaultRCSBURL
	}
	return &Fetcher{client: client, baseURL: baseURL}
}

// Structure downloads and parses the PDB entry pdbID.
func (f *Fetcher) Structure(ctx context.Context, pdbID string) (*PDB, error) {
	pdbID = strings.ToUpper(strings.TrimSpace(pdbID))
	if pdbID == "" {
		return nil, fmt.Errorf("%w: empty PDB ID", ErrUnavailable)
	}

	url := f.baseURL + pdbID + ".pdb"
	raw, err := f.client.Get(ctx, url)
	if err != nil {
		var se *http.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return nil, fmt.Errorf("%w: PDB ID %s does not exist in RCSB", ErrUnavailable, pdbID)
		}
		return nil, fmt.Errorf("%w: download %s: %w", ErrUnavailable, pdbID, err)
	}

	pdb := &PDB{ID: pdbID, PDBURL: url, RawPDB: raw}
	if err := pdb.Parse(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", pdbID, err)
	}
	pdb.ID = pdbID

	return pdb, nil
}

// readFile reads path, gunzipping it when the name ends with ".gz".
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	return io.ReadAll(r)
}

func fileID(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".gz")
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
