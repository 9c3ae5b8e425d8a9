package verification

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an operation of the flow failed.
type ErrorKind int

const (
	// KindValidation is a local precondition failure; no network call was made.
	KindValidation ErrorKind = iota + 1
	// KindBackendRejection means the backend answered with status=false.
	KindBackendRejection
	// KindNetworkFailure means the call did not complete or returned a non-2xx status.
	KindNetworkFailure
	// KindStorageInconsistency means verification succeeded without a usable token.
	KindStorageInconsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBackendRejection:
		return "backend_rejection"
	case KindNetworkFailure:
		return "network_failure"
	case KindStorageInconsistency:
		return "storage_inconsistency"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidPhone     = errors.New("phone number must be exactly 10 digits")
	ErrTermsNotAccepted = errors.New("terms of use not accepted")
	ErrNoCountry        = errors.New("no country selected")
	ErrUnknownCountry   = errors.New("country is not in the directory")
	ErrInvalidOTP       = errors.New("otp must be exactly 6 digits")
	ErrInvalidDigit     = errors.New("otp slot accepts a single digit")
	ErrSlotIndex        = errors.New("otp slot index out of range")
	ErrRequestInFlight  = errors.New("a request is already in flight")
	ErrCooldownActive   = errors.New("resend cooldown is still running")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrFlowClosed       = errors.New("verification flow is closed")
	ErrBackendRejected  = errors.New("backend rejected the request")
	ErrMissingToken     = errors.New("backend reported success without a token")
)

// User-facing messages.
const (
	msgInvalidPhone     = "Please enter a valid 10-digit phone number."
	msgTermsNotAccepted = "Please accept the Terms of Use & Privacy Policy."
	msgNoCountry        = "Please select your country."
	msgUnknownCountry   = "Please select a country from the list."
	msgInvalidOTP       = "Please enter a valid 6-digit OTP."
	msgInvalidDigit     = "Only digits are allowed."
	msgInFlight         = "Please wait, a request is in progress."
	msgCooldownActive   = "Please wait before requesting a new code."
	msgInvalidState     = "This action is not available right now."

	msgOTPSent        = "OTP sent on WhatsApp"
	msgRequestFailed  = "An error occurred. Please try again."
	msgResent         = "OTP resent successfully"
	msgResendRejected = "Failed to resend OTP."
	msgResendFailed   = "Failed to resend OTP. Please try again."
	msgVerified       = "Mobile number verified"
	msgVerifyRejected = "Invalid OTP. Please try again."
	msgVerifyFailed   = "An error occurred while verifying OTP. Please try again."
	msgStorageFailed  = "Verification succeeded but the session could not be saved."
)

// FlowError is returned by every controller operation that fails. Message is
// the text surfaced to the user.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a *FlowError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

var validationMessages = map[error]string{
	ErrInvalidPhone:     msgInvalidPhone,
	ErrTermsNotAccepted: msgTermsNotAccepted,
	ErrNoCountry:        msgNoCountry,
	ErrUnknownCountry:   msgUnknownCountry,
	ErrInvalidOTP:       msgInvalidOTP,
	ErrInvalidDigit:     msgInvalidDigit,
	ErrSlotIndex:        msgInvalidDigit,
	ErrRequestInFlight:  msgInFlight,
	ErrCooldownActive:   msgCooldownActive,
	ErrInvalidState:     msgInvalidState,
}

func validationError(sentinel error) *FlowError {
	msg, ok := validationMessages[sentinel]
	if !ok {
		msg = sentinel.Error()
	}
	return &FlowError{Kind: KindValidation, Message: msg, Err: sentinel}
}

func rejection(message, fallback string) *FlowError {
	if message == "" {
		message = fallback
	}
	return &FlowError{Kind: KindBackendRejection, Message: message, Err: ErrBackendRejected}
}

func networkFailure(message string, err error) *FlowError {
	return &FlowError{Kind: KindNetworkFailure, Message: message, Err: err}
}
