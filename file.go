package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/pdb"
)

var structureExts = []string{".pdb", ".ent", ".pdb.gz", ".ent.gz"}

func isStructureFile(id string) bool {
	lower := strings.ToLower(id)
	for _, ext := range structureExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// fileSource reads an identifier naming an existing file from disk and
// hands anything else to remote.
type fileSource struct {
	remote align.Source
}

func newFileSource(remote align.Source) *fileSource {
	return &fileSource{remote: remote}
}

func (s *fileSource) Structure(ctx context.Context, id string) (*pdb.PDB, error) {
	fi, err := os.Stat(id)
	if err == nil && !fi.IsDir() {
		return pdb.NewPDBFromFile(id)
	}
	if isStructureFile(id) {
		return nil, fmt.Errorf("%w: no such file %s", pdb.ErrUnavailable, id)
	}

	return s.remote.Structure(ctx, id)
}
