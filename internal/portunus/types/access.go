package types

// OpenAccessRequest starts a request from a door module's QR scan.
type OpenAccessRequest struct {
	ModuleID string `json:"module_id"`
}

// SubmitAccessRequest supplies the visitor details for an opened request.
type SubmitAccessRequest struct {
	Category    string `json:"category"`
	Phone       string `json:"phone,omitempty"`
	VisitorName string `json:"visitor_name,omitempty"`
}

// CreateAccessRequest is Open and Submit in one call.
type CreateAccessRequest struct {
	ModuleID    string `json:"module_id,omitempty"`
	Category    string `json:"category"`
	Phone       string `json:"phone,omitempty"`
	VisitorName string `json:"visitor_name,omitempty"`
}

type VerifyOTPRequest struct {
	Code string `json:"code"`
}

type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AccessRequestView is the externally visible shape of an access request.
// OTPCode is only populated while the request waits for that code.
type AccessRequestView struct {
	RequestID     string  `json:"request_id"`
	ModuleID      string  `json:"module_id,omitempty"`
	Category      string  `json:"category"`
	Phone         string  `json:"phone,omitempty"`
	VisitorName   string  `json:"visitor_name,omitempty"`
	Status        string  `json:"status"`
	OTPCode       string  `json:"otp_code,omitempty"`
	OTPVerified   bool    `json:"otp_verified"`
	FaceVerified  bool    `json:"face_verified"`
	AccessGranted bool    `json:"access_granted"`
	Reason        string  `json:"reason,omitempty"`
	ExpiresAt     string  `json:"expires_at,omitempty"`
	AccessTime    string  `json:"access_time,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// MutationResponse is returned by every call that changes state.
type MutationResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Request *AccessRequestView `json:"request,omitempty"`
}

type AccessRequestList struct {
	Requests []AccessRequestView `json:"requests"`
}
