package pdb

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	bhttp "github.com/tikz/localrmsd/http"
)

func LoadTestFile(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func loadTestPDB(t *testing.T) *PDB {
	t.Helper()
	raw, err := LoadTestFile("./testdata/1abc.pdb")
	require.NoError(t, err)

	pdb, err := NewPDBFromRaw(raw)
	require.NoError(t, err)
	return pdb
}

func TestChains(t *testing.T) {
	pdb := loadTestPDB(t)

	require.Len(t, pdb.Models, 1)
	m := pdb.FirstModel()
	assert.Equal(t, []string{"A", "B"}, m.ChainIDs())

	a, ok := m.Chain("A")
	require.True(t, ok)
	// 1-8, 8A, 9, MSE 10, HOH 101
	require.Len(t, a.Residues, 12)

	res := a.Residues[3]
	if res.Name != "Leucine" {
		t.Errorf("expected Leucine in A-4, got %s", res.Name)
	}
	ca, ok := res.AlphaCarbon()
	require.True(t, ok)
	assert.Equal(t, "A", ca.AltLoc, "first alternate location is kept")
	assert.InDelta(t, 1.150, ca.X, 1e-9)

	ins := a.Residues[8]
	assert.Equal(t, int64(8), ins.Number)
	assert.Equal(t, "A", ins.InsertionCode)
	assert.Equal(t, "Threonine", ins.Name)

	mse := a.Residues[10]
	assert.True(t, mse.Hetero)
	assert.False(t, mse.Standard)
	assert.Equal(t, "MSE", mse.Name3)

	assert.Equal(t, []string{"MSE", "HOH"}, pdb.HetGroups)
}

func TestHeader(t *testing.T) {
	pdb := loadTestPDB(t)

	assert.Equal(t, "1ABC", pdb.ID)
	assert.Equal(t, "HYDROLASE", pdb.Classification)
	assert.Equal(t, "SYNTHETIC TWO CHAIN TEST ENTRY FOR LOCAL RMSD PARSING", pdb.Title)
	assert.Equal(t, "X-RAY DIFFRACTION", pdb.Method)
	assert.Equal(t, 1.8, pdb.Resolution)

	require.NotNil(t, pdb.Date)
	if pdb.Date.Day() != 19 || pdb.Date.Month() != 9 || pdb.Date.Year() != 2002 {
		t.Errorf("expected date to be 2002-09-19, got %v", pdb.Date)
	}
}

func TestMultipleModels(t *testing.T) {
	raw := strings.Join([]string{
		"MODEL        1",
		"ATOM      1  CA  GLY A   1       1.000   2.000   3.000  1.00  0.00           C",
		"ENDMDL",
		"MODEL        2",
		"ATOM      1  CA  GLY A   1       4.000   5.000   6.000  1.00  0.00           C",
		"ENDMDL",
	}, "\n")

	pdb, err := NewPDBFromRaw([]byte(raw))
	require.NoError(t, err)
	require.Len(t, pdb.Models, 2)
	assert.Equal(t, 2, pdb.Models[1].Number)

	c, _ := pdb.FirstModel().Chain("A")
	ca, _ := c.Residues[0].AlphaCarbon()
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, ca.Coord())
}

func TestAltLocFirstListed(t *testing.T) {
	raw := strings.Join([]string{
		"ATOM      1  CA ASER A   1       1.000   0.000   0.000  0.30  0.00           C",
		"ATOM      2  CA BSER A   1       2.000   0.000   0.000  0.70  0.00           C",
		"ATOM      3  OG ASER A   1       1.500   1.000   0.000  0.30  0.00           O",
		"ATOM      4  OG BSER A   1       2.500   1.000   0.000  0.70  0.00           O",
	}, "\n")

	pdb, err := NewPDBFromRaw([]byte(raw))
	require.NoError(t, err)

	c, _ := pdb.FirstModel().Chain("A")
	require.Len(t, c.Residues, 1)
	res := c.Residues[0]
	require.Len(t, res.Atoms, 2)

	ca, _ := res.AlphaCarbon()
	assert.Equal(t, "A", ca.AltLoc, "lower occupancy altloc listed first is kept")
	assert.Equal(t, 0.30, ca.Occupancy)
	assert.Equal(t, 1.0, ca.X)
}

func TestUnavailable(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":    "",
		"blank":    "  \n\n",
		"no atoms": "HEADER    HYDROLASE\nEND\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewPDBFromRaw([]byte(raw))
			assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		})
	}
}

func TestBackbone(t *testing.T) {
	pdb := loadTestPDB(t)
	a, _ := pdb.FirstModel().Chain("A")

	set, err := Backbone(a)
	require.NoError(t, err)
	require.Equal(t, 9, set.Len())
	assert.Len(t, set.Residues, set.Len())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 8}, set.Positions())
	assert.Equal(t, r3.Vec{X: 3.2, Y: 1.2, Z: 13.0}, set.Points[8])

	b, _ := pdb.FirstModel().Chain("B")
	set, err = Backbone(b)
	require.NoError(t, err)
	assert.Equal(t, 6, set.Len())
}

func TestEmptyBackbone(t *testing.T) {
	water := NewResidue("W", 1, "HOH")
	water.Hetero = true
	water.Atoms = []*Atom{{Name: "O", Residue: "HOH", Chain: "W", ResidueNumber: 1, Het: true}}
	noCA := testResidue("W", 2, "ALA", nil)
	noCA.Atoms = []*Atom{{Name: "N", Residue: "ALA", Chain: "W", ResidueNumber: 2}}

	_, err := Backbone(NewChain("W", water, noCA))
	assert.True(t, errors.Is(err, ErrEmptyBackbone))
}

func TestResolveChains(t *testing.T) {
	a := testPDB("1AAA", NewChain("A"), NewChain("B"), NewChain("C"))
	b := testPDB("2BBB", NewChain("C"), NewChain("B"))
	c := testPDB("3CCC", NewChain("X"))

	tests := []struct {
		name           string
		a, b           *PDB
		chainA, chainB string
		wantA, wantB   string
		err            error
	}{
		{"first common sorted", a, b, "", "", "B", "B", nil},
		{"both explicit", a, b, "A", "C", "A", "C", nil},
		{"explicit missing in a", a, b, "Z", "B", "", "", ErrChainNotFound},
		{"explicit missing in b", a, b, "A", "A", "", "", ErrChainNotFound},
		{"fixed a intersected with b", a, b, "C", "", "C", "C", nil},
		{"fixed b intersected with a", a, b, "", "B", "B", "B", nil},
		{"fixed a absent from b", a, b, "A", "", "", "", ErrNoCommonChain},
		{"fixed a absent from a", a, b, "Q", "", "", "", ErrChainNotFound},
		{"disjoint", a, c, "", "", "", "", ErrNoCommonChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotA, gotB, err := ResolveChains(tt.a, tt.b, tt.chainA, tt.chainB)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantA, gotA)
			assert.Equal(t, tt.wantB, gotB)
		})
	}
}

func TestTruncate(t *testing.T) {
	long, err := Backbone(testCAChain("A", 1, 2, 3, 4, 5, 6, 7))
	require.NoError(t, err)
	short, err := Backbone(testCAChain("A", 10, 11, 12, 13))
	require.NoError(t, err)

	ta, tb := Truncate(long, short)
	assert.Equal(t, 4, ta.Len())
	assert.Equal(t, 4, tb.Len())
	assert.Equal(t, []int64{1, 2, 3, 4}, ta.Positions())
	assert.Equal(t, []int64{10, 11, 12, 13}, tb.Positions())

	// symmetric
	tb2, ta2 := Truncate(short, long)
	assert.Equal(t, ta.Positions(), ta2.Positions())
	assert.Equal(t, tb.Positions(), tb2.Positions())

	// truncation does not touch the source set
	assert.Equal(t, 7, long.Len())
}

func TestMatchResidueNumbers(t *testing.T) {
	a := testCAChain("A", 5, 3, 4, 9, 10)
	b := testCAChain("A", 1, 2, 3, 4, 5, 6)
	b.Residues = append(b.Residues, testResidue("A", 10, "GLY", nil))

	sa, sb := MatchResidueNumbers(a, b)
	assert.Equal(t, []int64{3, 4, 5}, sa.Positions())
	assert.Equal(t, []int64{3, 4, 5}, sb.Positions())
	assert.Equal(t, sa.Len(), sb.Len())
	for i := range sa.Points {
		assert.Equal(t, sa.Points[i], sb.Points[i])
	}
}

func TestWriteRoundTrip(t *testing.T) {
	pdb := loadTestPDB(t)

	var buf bytes.Buffer
	require.NoError(t, pdb.Write(&buf, ""))

	again, err := NewPDBFromRaw(buf.Bytes())
	require.NoError(t, err)

	for _, id := range []string{"A", "B"} {
		c1, _ := pdb.FirstModel().Chain(id)
		c2, ok := again.FirstModel().Chain(id)
		require.True(t, ok)
		require.Len(t, c2.Residues, len(c1.Residues))
		for i, r := range c1.Residues {
			require.Len(t, c2.Residues[i].Atoms, len(r.Atoms))
			for j, a := range r.Atoms {
				assert.Equal(t, a.Name, c2.Residues[i].Atoms[j].Name)
				assert.InDelta(t, 0, r3.Norm(r3.Sub(a.Coord(), c2.Residues[i].Atoms[j].Coord())), 1e-3)
			}
		}
	}

	buf.Reset()
	require.NoError(t, pdb.Write(&buf, "B"))
	onlyB, err := NewPDBFromRaw(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, onlyB.FirstModel().ChainIDs())
	assert.Contains(t, buf.String(), "ATOM     41  CA  GLY B   1      10.500   5.500   0.000  1.00 20.00           C")
}

func TestTransformed(t *testing.T) {
	pdb := loadTestPDB(t)
	shift := r3.Vec{X: 1, Y: -2, Z: 3}

	moved := pdb.Transformed(func(v r3.Vec) r3.Vec { return r3.Add(v, shift) })

	c1, _ := pdb.FirstModel().Chain("B")
	c2, _ := moved.FirstModel().Chain("B")
	a1, _ := c1.Residues[0].AlphaCarbon()
	a2, _ := c2.Residues[0].AlphaCarbon()
	assert.Equal(t, r3.Vec{X: 10.5, Y: 5.5, Z: 0}, a1.Coord(), "source untouched")
	assert.Equal(t, r3.Add(a1.Coord(), shift), a2.Coord())
	assert.Equal(t, pdb.FirstModel().ChainIDs(), moved.FirstModel().ChainIDs())
}

func TestFetcher(t *testing.T) {
	raw, err := LoadTestFile("./testdata/1abc.pdb")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1ABC.pdb":
			w.Write(raw)
		case "/EMPT.pdb":
			w.Write([]byte("\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(bhttp.NewClient(0), srv.URL+"/")

	pdb, err := f.Structure(context.Background(), "1abc")
	require.NoError(t, err)
	assert.Equal(t, "1ABC", pdb.ID)
	assert.Equal(t, srv.URL+"/1ABC.pdb", pdb.PDBURL)

	_, err = f.Structure(context.Background(), "9zzz")
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "does not exist")

	_, err = f.Structure(context.Background(), "empt")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSIFTSOracle(t *testing.T) {
	body := `{"1abc": {"UniProt": {
		"P01308": {"identifier": "INS_HUMAN", "name": "INS", "mappings": [
			{"chain_id": "A", "unp_start": 90, "unp_end": 110, "start": {"residue_number": 1}, "end": {"residue_number": 21}},
			{"chain_id": "B", "unp_start": 25, "unp_end": 54, "start": {"residue_number": 1}, "end": {"residue_number": 30}}
		]},
		"Q99999": {"identifier": "Q99999", "mappings": [{"chain_id": "B "}]}
	}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1abc" {
			w.Write([]byte(body))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewSIFTSOracle(bhttp.NewClient(0), srv.URL+"/", nil)
	ctx := context.Background()

	assert.Equal(t, []string{"P01308"}, o.Accessions(ctx, "1ABC", "A"))
	assert.Equal(t, []string{"P01308", "Q99999"}, o.Accessions(ctx, "1ABC", "B"))
	assert.Empty(t, o.Accessions(ctx, "1ABC", "C"))
	assert.Empty(t, o.Accessions(ctx, "2XYZ", "A"), "server failures degrade to no accessions")

	sifts, err := GetSIFTSMappings(ctx, bhttp.NewClient(0), srv.URL+"/", "1abc")
	require.NoError(t, err)
	m := sifts.UniProt["P01308"].Mappings[1]
	if m.UnpStart != 25 || m.UnpEnd != 54 || m.PDBStart.ResidueNumber != 1 || m.PDBEnd.ResidueNumber != 30 {
		t.Errorf("received unexpected mapping positions")
	}
}

func testPDB(id string, chains ...*Chain) *PDB {
	return &PDB{ID: id, Models: []*Model{NewModel(1, chains...)}}
}

func testResidue(chain string, num int64, name string, ca *r3.Vec) *Residue {
	res := NewResidue(chain, num, name)
	if ca != nil {
		res.Atoms = []*Atom{{
			Name: AlphaCarbonName, Residue: name, Chain: chain, ResidueNumber: num,
			X: ca.X, Y: ca.Y, Z: ca.Z, Element: "C",
		}}
	}
	return res
}

// testCAChain builds an alanine chain with one CA per residue number,
// placed at x = number.
func testCAChain(id string, nums ...int64) *Chain {
	c := NewChain(id)
	for _, n := range nums {
		p := r3.Vec{X: float64(n), Y: 0.5 * float64(n%3), Z: 0}
		c.Residues = append(c.Residues, testResidue(id, n, "ALA", &p))
	}
	return c
}

func TestDistance(t *testing.T) {
	a := &Atom{X: 0, Y: 0, Z: 0}
	b := &Atom{X: 3, Y: 4, Z: 0}
	assert.Equal(t, 5.0, Distance(a, b))
	assert.Equal(t, 0.0, Distance(a, a))
}

func TestBreaks(t *testing.T) {
	set, err := Backbone(testCAChain("A", 1, 2, 3, 10, 11, 20))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, set.Breaks())

	set, err = Backbone(testCAChain("A", 1, 2, 3, 4))
	require.NoError(t, err)
	assert.Empty(t, set.Breaks())
}
