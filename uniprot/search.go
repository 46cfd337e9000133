package uniprot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultSearchSize is the number of results asked for when none is given.
const DefaultSearchSize = 10

// SearchResult is a single hit of a UniProt search.
type SearchResult struct {
	Accession string `json:"accession"`
	Name      string `json:"name"`
	Protein   string `json:"protein"`
	Organism  string `json:"organism"`
	Length    int    `json:"length"`
}

// Search runs a free text UniProtKB query and returns up to size hits.
func (c *Client) Search(ctx context.Context, query string, size int) ([]SearchResult, error) {
	if size <= 0 {
		size = DefaultSearchSize
	}
	params := url.Values{
		"query":  {query},
		"format": {"json"},
		"fields": {"accession,id,protein_name,organism_name,length"},
		"size":   {strconv.Itoa(size)},
	}

	raw, err := c.client.Get(ctx, c.baseURL+"uniprotkb/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("UniProt search query %q: %w", query, err)
	}

	var resp struct {
		Results []entryJSON `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal search results: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, e := range resp.Results {
		results = append(results, SearchResult{
			Accession: e.PrimaryAccession,
			Name:      e.UniProtkbID,
			Protein:   e.ProteinDescription.RecommendedName.FullName.Value,
			Organism:  e.Organism.ScientificName,
			Length:    e.Sequence.Length,
		})
	}

	return results, nil
}
