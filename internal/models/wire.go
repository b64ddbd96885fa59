package models

// Wire models for the auth endpoints of the exam-platform backend.

// Response status values
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Machine-readable response codes the client branches on
const (
	CodeAuthenticationCodeRequired = "AUTHENTICATION_CODE_REQUIRED"
	CodeInvalidAuthenticationCode  = "INVALID_AUTHENTICATION_CODE"
	CodeInvalidCredentials         = "INVALID_CREDENTIALS"
	CodeSubscriptionExpired        = "SUBSCRIPTION_EXPIRED"
)

// LoginRequest is the body of POST /users/login
type LoginRequest struct {
	Email              string `json:"email" binding:"required,email"`
	Password           string `json:"password" binding:"required"`
	AuthenticationCode string `json:"authentication_code,omitempty"`
}

// LoginPayload carries the session granted by a successful login
type LoginPayload struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// LoginResponse is the body returned by POST /users/login
type LoginResponse struct {
	Status       string        `json:"status,omitempty"`
	ResponseCode string        `json:"responseCode,omitempty"`
	Message      string        `json:"message,omitempty"`
	Payload      *LoginPayload `json:"payload,omitempty"`
}

// RenewPayload carries the replacement token from a renewal
type RenewPayload struct {
	Token string `json:"token"`
}

// RenewResponse is the body returned by POST /users/renew-token
type RenewResponse struct {
	Status       string        `json:"status,omitempty"`
	ResponseCode string        `json:"responseCode,omitempty"`
	Message      string        `json:"message,omitempty"`
	Payload      *RenewPayload `json:"payload,omitempty"`
}

// StatusResponse is the generic body for logout / resend-otp / 2FA toggles
type StatusResponse struct {
	Status       string `json:"status,omitempty"`
	ResponseCode string `json:"responseCode,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ResendOTPRequest is the body of POST /users/resend-otp
type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// TwoFactorRequest is the body for the 2FA enable/disable endpoints
type TwoFactorRequest struct {
	AuthenticationCode string `json:"authentication_code" binding:"required"`
}

// TwoFactorGeneratePayload carries a freshly generated 2FA secret
type TwoFactorGeneratePayload struct {
	Secret string `json:"secret"`
}

// TwoFactorGenerateResponse is the body returned by the 2FA generate endpoint
type TwoFactorGenerateResponse struct {
	Status  string                    `json:"status,omitempty"`
	Message string                    `json:"message,omitempty"`
	Payload *TwoFactorGeneratePayload `json:"payload,omitempty"`
}
