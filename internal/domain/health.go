package domain

// ============================================================
// Health API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// OpsMetrics is returned by GET /v1/metrics/ops.
type OpsMetrics struct {
	SellerCommissionsGenerated float64 `json:"sellerCommissionsGenerated"`
	SDRCommissionsGenerated    float64 `json:"sdrCommissionsGenerated"`
	SDRApproved                float64 `json:"sdrApproved"`
	SDRRejected                float64 `json:"sdrRejected"`
	LeadsScored                float64 `json:"leadsScored"`
	RevenueCacheHitRate        float64 `json:"revenueCacheHitRate"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
