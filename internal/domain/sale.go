package domain

import "time"

// ============================================================
// Sales / Installments
// ============================================================

// SaleStatus is the lifecycle state of a recorded sale.
type SaleStatus string

const (
	SaleActive    SaleStatus = "active"
	SaleCancelled SaleStatus = "cancelled"
)

// Sale is a recorded purchase imported from a sales platform.
type Sale struct {
	ID                string     `json:"id"`
	ExternalID        string     `json:"external_id"`
	ClientName        string     `json:"client_name"`
	ClientEmail       string     `json:"client_email"`
	ProductName       string     `json:"product_name"`
	ProductID         *string    `json:"product_id"`
	TotalValue        float64    `json:"total_value"`
	InstallmentsCount int        `json:"installments_count"`
	SaleDate          time.Time  `json:"sale_date"`
	Platform          string     `json:"platform"`
	Status            SaleStatus `json:"status"`
	SellerID          *string    `json:"seller_id"`
	CommissionPercent *float64   `json:"commission_percent"`
}

// InstallmentStatus is the payment state of an installment.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// Installment is one scheduled payment of a sale. Numbers run from 1 to
// TotalInstallments and are unique per sale.
type Installment struct {
	ID                string            `json:"id"`
	SaleID            string            `json:"sale_id"`
	Number            int               `json:"installment_number"`
	TotalInstallments int               `json:"total_installments"`
	Value             float64           `json:"value"`
	DueDate           time.Time         `json:"due_date"`
	PaymentDate       *time.Time        `json:"payment_date"`
	Status            InstallmentStatus `json:"status"`
}

// Paid reports whether the installment has been settled.
func (i Installment) Paid() bool {
	return i.Status == InstallmentPaid
}

// InstallmentIDs returns the ids of the given installments, preserving order.
func InstallmentIDs(installments []Installment) []string {
	ids := make([]string, 0, len(installments))
	for _, inst := range installments {
		ids = append(ids, inst.ID)
	}
	return ids
}
