package types

// RequestStatus is the lifecycle tag of an access request.
type RequestStatus string

const (
	StatusInitiated              RequestStatus = "INITIATED"
	StatusOTPIssued              RequestStatus = "OTP_ISSUED"
	StatusPendingAdminApproval   RequestStatus = "PENDING_ADMIN_APPROVAL"
	StatusOTPVerified            RequestStatus = "OTP_VERIFIED"
	StatusAccessGranted          RequestStatus = "ACCESS_GRANTED"
	StatusFaceVerificationFailed RequestStatus = "FACE_VERIFICATION_FAILED"
	StatusDenied                 RequestStatus = "DENIED"
	StatusExpired                RequestStatus = "EXPIRED"
	StatusRejected               RequestStatus = "REJECTED"
)

var terminalStatuses = []RequestStatus{
	StatusAccessGranted,
	StatusFaceVerificationFailed,
	StatusDenied,
	StatusExpired,
	StatusRejected,
}

// TerminalStatuses lists the states a request never leaves.
func TerminalStatuses() []RequestStatus {
	out := make([]RequestStatus, len(terminalStatuses))
	copy(out, terminalStatuses)
	return out
}

func (s RequestStatus) Terminal() bool {
	for _, t := range terminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusInitiated, StatusOTPIssued, StatusPendingAdminApproval, StatusOTPVerified:
		return true
	}
	return s.Terminal()
}
