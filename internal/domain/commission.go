package domain

import (
	"fmt"
	"time"
)

// ============================================================
// Seller commissions
// ============================================================

// DefaultCommissionPercent applies when neither the caller nor the sale
// carries a commission percent.
const DefaultCommissionPercent = 10.0

// CommissionStatus is the payout state of a commission row.
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionReleased  CommissionStatus = "released"
	CommissionSuspended CommissionStatus = "suspended"
	CommissionCancelled CommissionStatus = "cancelled"
)

// ParseCommissionStatus validates a raw status string.
func ParseCommissionStatus(s string) (CommissionStatus, error) {
	switch st := CommissionStatus(s); st {
	case CommissionPending, CommissionReleased, CommissionSuspended, CommissionCancelled:
		return st, nil
	}
	return "", &ErrValidation{Field: "status", Message: fmt.Sprintf("unknown commission status %q", s)}
}

// Commission is a seller's share of one installment. CommissionValue is
// fixed when the row is created.
type Commission struct {
	ID                string           `json:"id"`
	InstallmentID     string           `json:"installment_id"`
	SellerID          string           `json:"seller_id"`
	InstallmentValue  float64          `json:"installment_value"`
	CommissionPercent float64          `json:"commission_percent"`
	CommissionValue   float64          `json:"commission_value"`
	CompetenceMonth   time.Time        `json:"competence_month"`
	Status            CommissionStatus `json:"status"`
	ReleasedAt        *time.Time       `json:"released_at"`
}

// CommissionFilter narrows commission listings. Zero values are ignored.
type CommissionFilter struct {
	SellerID        string
	InstallmentIDs  []string
	CompetenceMonth *time.Time
	Status          CommissionStatus
}

// CommissionStatement aggregates a seller's commissions for one competence month.
type CommissionStatement struct {
	SellerID        string       `json:"seller_id"`
	CompetenceMonth time.Time    `json:"competence_month"`
	Pending         float64      `json:"pending"`
	Released        float64      `json:"released"`
	Suspended       float64      `json:"suspended"`
	Cancelled       float64      `json:"cancelled"`
	Total           float64      `json:"total"`
	Count           int          `json:"count"`
	Items           []Commission `json:"items"`
}

// SaleCommissions is the per-sale view the dashboard renders after any
// commission mutation.
type SaleCommissions struct {
	SaleID string          `json:"sale_id"`
	Seller []Commission    `json:"seller"`
	SDR    []SDRCommission `json:"sdr"`
}

// ============================================================
// SDR assignments
// ============================================================

// DefaultSDRPercent applies when an assignment is created without a percent.
const DefaultSDRPercent = 1.0

// SDRAssignmentStatus is the approval state of an SDR claim.
type SDRAssignmentStatus string

const (
	SDRPending  SDRAssignmentStatus = "pending"
	SDRApproved SDRAssignmentStatus = "approved"
	SDRRejected SDRAssignmentStatus = "rejected"
)

// SDRAssignment is an SDR's claim of credit for a sale. At most one exists
// per sale; approved and rejected are terminal.
type SDRAssignment struct {
	ID                string              `json:"id"`
	SaleID            string              `json:"sale_id"`
	SDRID             string              `json:"sdr_id"`
	ProofLink         string              `json:"proof_link"`
	CommissionPercent float64             `json:"commission_percent"`
	Status            SDRAssignmentStatus `json:"status"`
	ApprovedBy        *string             `json:"approved_by"`
	ApprovedAt        *time.Time          `json:"approved_at"`
	RejectionReason   *string             `json:"rejection_reason"`
	CreatedBy         *string             `json:"created_by"`
	CreatedAt         time.Time           `json:"created_at"`
}

// SDRAssignmentRequest is the input for creating an assignment.
type SDRAssignmentRequest struct {
	SaleID            string   `json:"sale_id"`
	SDRID             string   `json:"sdr_id"`
	ProofLink         string   `json:"proof_link"`
	CommissionPercent *float64 `json:"commission_percent,omitempty"`
	CreatedBy         string   `json:"created_by,omitempty"`
}

// SDRAssignmentFilter narrows assignment listings. Zero values are ignored.
type SDRAssignmentFilter struct {
	Status SDRAssignmentStatus
	SDRID  string
}

// SDRCommission is an SDR's share of one installment, created on approval.
type SDRCommission struct {
	ID                string           `json:"id"`
	InstallmentID     string           `json:"installment_id"`
	SDRAssignmentID   string           `json:"sdr_assignment_id"`
	SDRID             string           `json:"sdr_id"`
	InstallmentValue  float64          `json:"installment_value"`
	CommissionPercent float64          `json:"commission_percent"`
	CommissionValue   float64          `json:"commission_value"`
	CompetenceMonth   time.Time        `json:"competence_month"`
	Status            CommissionStatus `json:"status"`
	ReleasedAt        *time.Time       `json:"released_at"`
}

// SDRCommissionFilter narrows SDR commission listings.
type SDRCommissionFilter struct {
	SDRID           string
	SDRAssignmentID string
	InstallmentIDs  []string
	CompetenceMonth *time.Time
}

// ApprovalResult is returned to the approver for feedback.
type ApprovalResult struct {
	AssignmentID       string `json:"assignment_id"`
	CommissionsCreated int    `json:"commissions_created"`
}
