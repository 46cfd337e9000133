package pdb

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	headerRegex     = regexp.MustCompile("(?m)^HEADER.*$")
	titleRegex      = regexp.MustCompile("(?m)^TITLE .*$")
	expdtaRegex     = regexp.MustCompile("(?m)^EXPDTA.*$")
	resolutionRegex = regexp.MustCompile(`(?m)^REMARK   2 RESOLUTION\.\s+([0-9.]+)\s+ANGSTROMS`)
)

// ExtractHeader parses the HEADER, TITLE, EXPDTA and REMARK 2 records.
// Missing records leave the corresponding fields empty.
func (pdb *PDB) ExtractHeader(rawPDB []byte) {
	raw := string(rawPDB)

	// https://www.wwpdb.org/documentation/file-format-content/format33/sect2.html#HEADER
	if h := headerRegex.FindString(raw); h != "" {
		h = pad(h)
		pdb.Classification = strings.TrimSpace(h[10:50])
		if t, err := time.Parse("02-Jan-06", strings.TrimSpace(h[50:59])); err == nil {
			pdb.Date = &t
		}
		if id := strings.TrimSpace(h[62:66]); id != "" && pdb.ID == "" {
			pdb.ID = id
		}
	}

	var title []string
	for _, l := range titleRegex.FindAllString(raw, -1) {
		title = append(title, strings.TrimSpace(pad(l)[10:80]))
	}
	pdb.Title = strings.Join(title, " ")

	if e := expdtaRegex.FindString(raw); e != "" {
		pdb.Method = strings.TrimSpace(pad(e)[10:79])
	}

	if m := resolutionRegex.FindStringSubmatch(raw); len(m) > 1 {
		pdb.Resolution, _ = strconv.ParseFloat(m[1], 64)
	}
}
