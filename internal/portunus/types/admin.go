package types

type KeypadRequest struct {
	ModuleID string `json:"module_id,omitempty"`
	Code     string `json:"code"`
}

type KeypadResponse struct {
	Verified bool          `json:"verified"`
	Scope    string        `json:"scope,omitempty"` // "temp" or a category name
	Message  string        `json:"message"`
	Unlock   *UnlockResult `json:"unlock,omitempty"`
}

type TempCodeResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}

type RotateGroupCodeRequest struct {
	Category string `json:"category"`
	Code     string `json:"code"`
}

type UnlockRequest struct {
	ModuleID   string `json:"module_id,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

type CommissionModuleRequest struct {
	DisplayName string `json:"display_name,omitempty"`
}

type CleanupRequest struct {
	Days int `json:"days"`
}

type CleanupResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Requests   int64  `json:"requests"`
	OTPs       int64  `json:"otps"`
	Heartbeats int64  `json:"heartbeats"`
}

type AccessEventView struct {
	EventID    string   `json:"event_id"`
	RequestID  string   `json:"request_id,omitempty"`
	ModuleID   string   `json:"module_id,omitempty"`
	Action     string   `json:"action"`
	Category   string   `json:"category,omitempty"`
	Granted    bool     `json:"granted"`
	Reason     string   `json:"reason,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Simulated  *bool    `json:"simulated,omitempty"`
	DecidedAt  string   `json:"decided_at"`
}

type AccessEventList struct {
	Events []AccessEventView `json:"events"`
}

type Statistics struct {
	TotalUsers       int            `json:"total_users"`
	UsersByCategory  map[string]int `json:"users_by_category"`
	EnrolledFaces    int            `json:"enrolled_faces"`
	TotalRequests    int            `json:"total_requests"`
	RequestsByStatus map[string]int `json:"requests_by_status"`
	PendingApprovals int            `json:"pending_approvals"`
	GrantedRequests  int            `json:"granted_requests"`
	DeniedRequests   int            `json:"denied_requests"`
	GeneratedAt      string         `json:"generated_at"`
}
