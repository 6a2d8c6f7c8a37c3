// Package client holds HTTP clients for services the BFA calls out to.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ops-bfa-go/internal/qualification"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// LeadSourceClient calls the edge function that reads a strategic session's
// lead spreadsheet.
type LeadSourceClient struct {
	httpClient *http.Client
	url        string
	token      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewLeadSourceClient creates a new LeadSourceClient. token is sent as a
// bearer credential when non-empty.
func NewLeadSourceClient(httpClient *http.Client, url, token string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *LeadSourceClient {
	return &LeadSourceClient{
		httpClient: httpClient,
		url:        url,
		token:      token,
		cb:         cb,
		cfg:        cfg,
	}
}

// leadSourceResponse accepts either keyed rows or a raw sheet range whose
// first row is the header.
type leadSourceResponse struct {
	Rows   []map[string]any `json:"rows"`
	Values [][]any          `json:"values"`
}

// FetchRows returns the session's raw rows keyed by column header.
func (c *LeadSourceClient) FetchRows(ctx context.Context, sessionID string) ([]map[string]string, error) {
	ctx, span := tracer.Start(ctx, "LeadSourceClient.FetchRows")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var payload leadSourceResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(map[string]string{"session_id": sessionID})
			if err != nil {
				return resilience.Permanent(err)
			}

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			if c.token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+c.token)
			}

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("lead source returned status %d", resp.StatusCode)
				if resp.StatusCode < 500 {
					return resilience.Permanent(err)
				}
				return err
			}

			payload = leadSourceResponse{}
			return json.NewDecoder(resp.Body).Decode(&payload)
		})
	})

	if err != nil {
		if resilience.IsBreakerOpen(err) {
			return nil, &domain.ErrCircuitOpen{Service: "lead-source"}
		}
		return nil, &domain.ErrExternalService{Service: "lead-source", Err: err}
	}

	rows := payload.toMaps()
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

func (r leadSourceResponse) toMaps() []map[string]string {
	if len(r.Rows) > 0 {
		out := make([]map[string]string, 0, len(r.Rows))
		for _, row := range r.Rows {
			m := make(map[string]string, len(row))
			for k, v := range row {
				m[k] = cellString(v)
			}
			out = append(out, m)
		}
		return out
	}

	if len(r.Values) == 0 {
		return []map[string]string{}
	}
	header := make([]string, len(r.Values[0]))
	for i, v := range r.Values[0] {
		header[i] = cellString(v)
	}
	rows := make([][]string, 0, len(r.Values)-1)
	for _, raw := range r.Values[1:] {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = cellString(v)
		}
		rows = append(rows, row)
	}
	return qualification.RowsToMaps(header, rows)
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
