package qualification

import (
	"sort"
	"strconv"
	"strings"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
)

// columnAliases maps normalized sheet headers to lead columns.
var columnAliases = map[string]string{
	"name":          "name",
	"nome":          "name",
	"nome completo": "name",
	"email":         "email",
	"e-mail":        "email",
	"phone":         "phone",
	"telefone":      "phone",
	"celular":       "phone",
	"whatsapp":      "phone",
	"utm_source":    "utm_source",
	"utm_medium":    "utm_medium",
	"utm_campaign":  "utm_campaign",
	"utm_content":   "utm_content",
	"utm_term":      "utm_term",
	"row_id":        "row_id",
}

// RowsToMaps pairs each row with the header. Blank headers are skipped and
// short rows leave the missing columns empty.
func RowsToMaps(header []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(header))
		for i, h := range header {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if i < len(row) {
				m[h] = row[i]
			} else {
				m[h] = ""
			}
		}
		out = append(out, m)
	}
	return out
}

// columnOf returns the lead column a header maps to, or "" for extra fields.
func columnOf(header string) string {
	return columnAliases[foldKey(header)]
}

// LeadFromRow maps one raw row into a lead. rowNumber is used as the
// source row id when the sheet has no row_id column. Rows whose cells are
// all blank return ok=false. Headers are visited in sorted order and, when
// several map to the same column, the first non-blank value wins; the others
// are kept as extra fields under their own header.
func LeadFromRow(sessionID string, rowNumber int, row map[string]string) (lead domain.StrategicLead, ok bool) {
	lead = domain.StrategicLead{
		SessionID:   sessionID,
		ExtraFields: make(map[string]string),
	}

	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	for _, header := range headers {
		value := strings.TrimSpace(row[header])
		if value != "" {
			ok = true
		}

		var dst *string
		switch columnOf(header) {
		case "name":
			dst = &lead.Name
		case "email":
			dst = &lead.Email
			value = strings.ToLower(value)
		case "phone":
			dst = &lead.Phone
		case "utm_source":
			dst = &lead.UTMSource
		case "utm_medium":
			dst = &lead.UTMMedium
		case "utm_campaign":
			dst = &lead.UTMCampaign
		case "utm_content":
			dst = &lead.UTMContent
		case "utm_term":
			dst = &lead.UTMTerm
		case "row_id":
			dst = &lead.SourceRowID
		default:
			key := strings.TrimSpace(header)
			if lead.ExtraFields[key] == "" {
				lead.ExtraFields[key] = value
			}
			continue
		}
		switch {
		case *dst == "":
			*dst = value
		case value != "":
			// Losing alias stays reachable under its own header.
			lead.ExtraFields[strings.TrimSpace(header)] = value
		}
	}

	if lead.SourceRowID == "" {
		lead.SourceRowID = strconv.Itoa(rowNumber)
	}
	return lead, ok
}
