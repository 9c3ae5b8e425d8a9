package model

import (
	"encoding/json"
	"time"
)

// -------------------- COUNTRY --------------------

// Country is one entry of the country directory used for dial-code selection.
type Country struct {
	Name     string `json:"name"`
	DialCode string `json:"dialCode"` // e.g. "+91"
	Code     string `json:"code"`     // ISO 3166-1 alpha-2, e.g. "IN"
}

// -------------------- AUTH API --------------------

// CheckMobileNumberRequest asks the backend to send an OTP to MobileNumber.
type CheckMobileNumberRequest struct {
	MobileNumber string `json:"mobileNumber"` // dial code + digits, e.g. "+919876543210"
}

// VerifyOTPRequest submits the code received for MobileNumber.
type VerifyOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
	OTP          string `json:"otp"`
}

// APIResponse is the envelope every Backend Auth API endpoint returns.
type APIResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Token   string          `json:"token,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Profile is the data payload of GET /profile/me.
type Profile struct {
	MobileNumber string    `json:"mobileNumber"`
	VerifiedAt   time.Time `json:"verifiedAt"`
}

// -------------------- BACKEND RECORDS --------------------

// OTPRecord is the hashed OTP kept by the dev backend until it expires or is used.
type OTPRecord struct {
	Hash          string    `json:"hash"`
	Salt          string    `json:"salt"`
	PepperVersion int       `json:"pepper_version"`
	Algorithm     string    `json:"algorithm"`
	IssuedAt      time.Time `json:"issued_at"`
}

// SessionRecord is what the dev backend knows about an issued session token.
type SessionRecord struct {
	Token        string    `json:"token"`
	MobileNumber string    `json:"mobile_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// OTPDispatch is the message handed to a delivery channel (log or Kafka).
type OTPDispatch struct {
	RequestID    string    `json:"request_id"`
	MobileNumber string    `json:"mobile_number"`
	Code         string    `json:"code"`
	Channel      string    `json:"channel"` // e.g. "whatsapp"
	CreatedAt    time.Time `json:"created_at"`
}
