package pipeline

import (
	"github.com/palantir/business-contact-pipeline/internal/leads"
)

// Row is the stable CSV export contract for one contact result.
type Row struct {
	BusinessName string
	Website      string
	Email        string
	Phone        string
	Address      string
	City         string
	EmailSource  string
	EmailOrigin  string
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"business_name",
		"website",
		"email",
		"phone",
		"address",
		"city",
		"email_source",
		"email_origin",
	}
}

func (r Row) values() []string {
	return []string{
		r.BusinessName,
		r.Website,
		r.Email,
		r.Phone,
		r.Address,
		r.City,
		r.EmailSource,
		r.EmailOrigin,
	}
}

// RowsFromResults converts stored results to export rows, keeping order.
func RowsFromResults(results []leads.ContactResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, Row{
			BusinessName: r.BusinessName,
			Website:      r.Website,
			Email:        r.Email,
			Phone:        r.Phone,
			Address:      r.Address,
			City:         r.City,
			EmailSource:  r.EmailSource,
			EmailOrigin:  string(r.Origin),
		})
	}
	return rows
}
