package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/enrich"
)

// Input columns. Header matching is case-insensitive; at least one of business_name and
// website must be present.
const (
	ColBusinessName = "business_name"
	ColWebsite      = "website"
	ColOwnerName    = "owner_name"
	ColBusinessType = "business_type"
	ColLocation     = "location"
)

// ReadRequestsCSV reads business rows into enrichment requests. Rows are not validated
// here so that output rows stay aligned with input rows.
func ReadRequestsCSV(r io.Reader) ([]enrich.Request, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	_, hasName := index[ColBusinessName]
	_, hasSite := index[ColWebsite]
	if !hasName && !hasSite {
		return nil, fmt.Errorf("missing required column %q or %q", ColBusinessName, ColWebsite)
	}

	var reqs []enrich.Request
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return reqs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		reqs = append(reqs, enrich.Request{
			BusinessName:  get(ColBusinessName),
			WebsiteURL:    get(ColWebsite),
			OwnerNameHint: get(ColOwnerName),
			BusinessType:  get(ColBusinessType),
			Location:      get(ColLocation),
		}.Normalize())
	}
}

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
