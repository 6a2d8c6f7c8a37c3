// Package service provides the business logic layer (use cases).
// Services fetch through the storage ports, run the pure computations in
// matching, commission and qualification, and persist the results.
package service

import (
	"strings"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
)

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &domain.ErrValidation{Field: field, Message: "required"}
	}
	return nil
}

func validPercent(field string, pct float64) error {
	if pct < 0 || pct > 100 {
		return &domain.ErrValidation{Field: field, Message: "must be between 0 and 100"}
	}
	return nil
}

func saleViewKey(saleID string) string {
	return "sale:" + saleID
}
