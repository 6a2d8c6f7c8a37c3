// Package supabase provides a client for Supabase PostgREST.
// It is the default storage adapter for sales, commissions, SDR
// assignments and strategic leads.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// pageSize matches the PostgREST default max-rows.
const pageSize = 1000

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// postgrestError is the error body PostgREST returns on non-2xx responses.
type postgrestError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *postgrestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

// retryable reports whether the status may succeed on a second attempt.
func (e *postgrestError) retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

func newPostgrestError(status int, body []byte) *postgrestError {
	pe := &postgrestError{Status: status}
	if err := json.Unmarshal(body, pe); err != nil || pe.Message == "" {
		pe.Message = string(body)
	}
	return pe
}

// hasCode reports whether err carries the given SQLSTATE from PostgREST.
func hasCode(err error, code string) bool {
	var pe *postgrestError
	return errors.As(err, &pe) && pe.Code == code
}

// Ping checks PostgREST reachability with a one-row read.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	_, err := c.doRequest(ctx, http.MethodGet, "sales?select=id&limit=1", nil, "")
	return err
}

// get runs a read under the circuit breaker with retries and decodes the
// JSON body into out. A 404/204 decodes as an empty array.
func (c *Client) get(ctx context.Context, service, path string, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
			if err != nil {
				var pe *postgrestError
				if errors.As(err, &pe) && !pe.retryable() {
					return resilience.Permanent(err)
				}
				return err
			}
			if body == nil {
				body = []byte("[]")
			}
			if err := json.Unmarshal(body, out); err != nil {
				return resilience.Permanent(fmt.Errorf("decode %s: %w", service, err))
			}
			return nil
		})
	})
	return c.wrapErr(service, err)
}

// getAll pages through a list endpoint. path must already carry a query string.
func getAll[T any](ctx context.Context, c *Client, service, path string) ([]T, error) {
	out := make([]T, 0)
	for offset := 0; ; offset += pageSize {
		var page []T
		if err := c.get(ctx, service, fmt.Sprintf("%s&limit=%d&offset=%d", path, pageSize, offset), &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// send runs a write once under the circuit breaker. Writes are not retried.
func (c *Client) send(ctx context.Context, service, method, path string, payload any, prefer string) ([]byte, error) {
	res, err := c.cb.Execute(func() (any, error) {
		return c.doRequest(ctx, method, path, payload, prefer)
	})
	if err != nil {
		return nil, c.wrapErr(service, err)
	}
	body, _ := res.([]byte)
	return body, nil
}

func (c *Client) wrapErr(service string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsBreakerOpen(err) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
