// Package local reads batch search inputs from local files.
package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Query is one (area, sector) pair to search.
type Query struct {
	Area   string
	Sector string
}

// ReadQueriesCSV reads the "area" and "sector" columns of a CSV. Header names
// are case-insensitive and rows with a blank area or sector are skipped.
func ReadQueriesCSV(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	areaIdx, sectorIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "area":
			if areaIdx < 0 {
				areaIdx = i
			}
		case "sector":
			if sectorIdx < 0 {
				sectorIdx = i
			}
		}
	}
	if areaIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "area")
	}
	if sectorIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "sector")
	}

	var queries []Query
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		want := max(areaIdx, sectorIdx) + 1
		if len(rec) < want {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), want)
		}
		q := Query{Area: strings.TrimSpace(rec[areaIdx]), Sector: strings.TrimSpace(rec[sectorIdx])}
		if q.Area == "" || q.Sector == "" {
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}
