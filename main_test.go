package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikz/localrmsd/compat"
)

const siftsBody = `{"%s": {"UniProt": {"%s": {"identifier": "X", "mappings": [{"chain_id": "A"}, {"chain_id": "B"}]}}}}`

// siftsServer maps each lower-case PDB ID to one accession on chains A and B.
func siftsServer(t *testing.T, accs map[string]string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/")
		acc, ok := accs[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, siftsBody, id, acc)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/"
}

// copyAs writes the test entry under a new PDB ID.
func copyAs(t *testing.T, id string) string {
	t.Helper()
	raw, err := os.ReadFile(testFile)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), strings.ToLower(id)+".pdb")
	require.NoError(t, os.WriteFile(path, bytes.Replace(raw, []byte("1ABC"), []byte(id), 1), 0o644))
	return path
}

type result struct {
	code           int
	stdout, stderr string
}

func runCLI(stdin string, args ...string) result {
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestRunUsage(t *testing.T) {
	assert.Equal(t, 2, runCLI("").code)
	assert.Equal(t, 0, runCLI("", "help").code)
	assert.Equal(t, 0, runCLI("", "rmsd", "-h").code)

	res := runCLI("", "bogus")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "bogus"`)

	res = runCLI("", "rmsd", testFile)
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "rmsd <pdbA> <pdbB>")

	res = runCLI("", "rmsd", testFile, testFile, "--window", "0")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "window must be at least 1")

	assert.Equal(t, 2, runCLI("", "pdbs", "INS_HUMAN").code)
}

func TestRunRMSD(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	sifts := siftsServer(t, nil)

	res := runCLI("", "rmsd", testFile, testFile, "--sifts-url", sifts,
		"--save", "--db-path", db, "--plot", "--plot-dir", dir, "--workers", "2")
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "1ABC  SYNTHETIC TWO CHAIN TEST ENTRY FOR LOCAL RMSD PARSING")
	assert.Contains(t, res.stdout, "HYDROLASE | X-RAY DIFFRACTION | 1.80 Å | 2002-09-19")
	assert.Contains(t, res.stdout, "Chains: 1ABC:A vs 1ABC:A")
	assert.Contains(t, res.stdout, "Compatibility: unverifiable")
	assert.Contains(t, res.stdout, "Common length: 9 residues, window 5")
	assert.Contains(t, res.stdout, "Global RMSD: 0.000 Å")
	assert.Contains(t, res.stdout, "Mean: 0.000 Å")
	assert.Contains(t, res.stdout, "Saved as run ")
	assert.FileExists(t, filepath.Join(dir, "rmsd_local_1ABC_1ABC_A_A.png"))

	res = runCLI("", "history", "--db-path", db)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "1ABC:A")

	res = runCLI("", "show", "nope", "--db-path", db)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "run not found")
}

func TestRunRMSDChains(t *testing.T) {
	sifts := siftsServer(t, nil)

	res := runCLI("", "rmsd", testFile, testFile, "-1", "B", "-2", "B", "-w", "3", "--sifts-url", sifts)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Chains: 1ABC:B vs 1ABC:B")
	assert.Contains(t, res.stdout, "Common length: 6 residues, window 3")

	res = runCLI("", "rmsd", testFile, testFile, "-1", "Z", "--sifts-url", sifts)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "chain not found")
}

func TestRunRMSDIncompatible(t *testing.T) {
	other := copyAs(t, "2XYZ")
	sifts := siftsServer(t, map[string]string{"1abc": "P01308", "2xyz": "P01325"})
	args := []string{"rmsd", testFile, other, "--sifts-url", sifts}

	res := runCLI("n\n", append(args, "--on-incompatible", "ask")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Continue anyway? [y/N]")
	assert.Contains(t, res.stdout, "Compatibility: likely incompatible")
	assert.Contains(t, res.stdout, "Analysis cancelled.")
	assert.NotContains(t, res.stdout, "Global RMSD")

	res = runCLI("sí\n", append(args, "--on-incompatible", "ask")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Chains: 1ABC:A vs 2XYZ:A")
	assert.Contains(t, res.stdout, "Global RMSD: 0.000 Å")

	res = runCLI("", append(args, "--on-incompatible", "abort")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "Continue anyway?")
	assert.Contains(t, res.stdout, "Analysis cancelled.")

	t.Setenv("LOCALRMSD_ON_INCOMPATIBLE", "continue")
	res = runCLI("", args...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Global RMSD: 0.000 Å")
}

func TestRunRMSDMissing(t *testing.T) {
	res := runCLI("", "rmsd", testFile, "missing.pdb", "--sifts-url", siftsServer(t, nil))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "fetch structure missing.pdb")
	assert.Contains(t, res.stderr, "structure unavailable")
}

func TestRunAlign(t *testing.T) {
	other := copyAs(t, "2XYZ")
	out := filepath.Join(t.TempDir(), "moved.pdb")

	res := runCLI("", "align", testFile, other, "-c", "A", "-o", out)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Chain: A, 10 matched residues")
	assert.Contains(t, res.stdout, "Global RMSD: 0.000 Å")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ATOM")
	assert.Contains(t, string(raw), " B ")
}

func TestRunPDBs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uniprotkb/P01308.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"primaryAccession": "P01308", "uniProtkbId": "INS_HUMAN",
		  "proteinDescription": {"recommendedName": {"fullName": {"value": "Insulin"}}},
		  "organism": {"scientificName": "Homo sapiens"},
		  "uniProtKBCrossReferences": [{"database": "PDB", "id": "4INS", "properties": [
		    {"key": "Method", "value": "X-ray"}, {"key": "Resolution", "value": "1.50 A"},
		    {"key": "Chains", "value": "A/C=90-110"}]}]}`))
	}))
	defer srv.Close()

	res := runCLI("", "pdbs", "p01308", "--uniprot-url", srv.URL+"/")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "P01308 INS_HUMAN: Insulin (Homo sapiens)")
	assert.Contains(t, res.stdout, "4INS")
	assert.Contains(t, res.stdout, "1.50 Å")

	res = runCLI("", "pdbs", "Q00000", "--uniprot-url", srv.URL+"/")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "accession not found")
}

func TestPrompt(t *testing.T) {
	res := compat.Result{
		Verdict:     compat.LikelyIncompatible,
		A:           compat.Ref{StructureID: "4INS", ChainID: "A"},
		B:           compat.Ref{StructureID: "1IZA", ChainID: "A"},
		AccessionsA: []string{"P01308"},
		AccessionsB: []string{"P01325"},
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Yes\n", true},
		{"s\n", true},
		{"si\n", true},
		{"SÍ\n", true},
		{"  yes  \n", true},
		{"y", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		ok, err := prompt(strings.NewReader(tt.input), &out)(context.Background(), res)
		require.NoError(t, err)
		if ok != tt.want {
			t.Errorf("answer %q: expected %v, got %v", tt.input, tt.want, ok)
		}
		assert.Contains(t, out.String(), "4INS:A [P01308] and 1IZA:A [P01325]")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("closed") }

func TestPromptReadError(t *testing.T) {
	_, err := prompt(failingReader{}, &bytes.Buffer{})(context.Background(), compat.Result{})
	assert.Error(t, err)
}
