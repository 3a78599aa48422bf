package api

import "github.com/Miky-131/dXdY-starkex-peripheral/internal/models"

// ==================== Deposits ====================

// DirectDepositRequest represents a direct stablecoin deposit
type DirectDepositRequest struct {
	Sender                string `json:"sender"`
	Amount                string `json:"amount"` // stablecoin base units
	StarkKey              string `json:"stark_key"`
	PositionID            string `json:"position_id"`
	RegistrationSignature string `json:"registration_signature,omitempty"` // hex
}

// ConvertDepositRequest represents a converted deposit. SourceToken is
// omitted for native deposits.
type ConvertDepositRequest struct {
	Sender                string `json:"sender"`
	SourceToken           string `json:"source_token,omitempty"`
	SourceAmount          string `json:"source_amount"` // source base units
	MinStablecoinAmount   string `json:"min_stablecoin_amount,omitempty"`
	StarkKey              string `json:"stark_key"`
	PositionID            string `json:"position_id"`
	RegistrationSignature string `json:"registration_signature,omitempty"` // hex
}

// DepositResponse represents the recorded outcome of a deposit attempt
type DepositResponse struct {
	DepositID        string               `json:"deposit_id"`
	Sender           string               `json:"sender"`
	Kind             models.DepositKind   `json:"kind"`
	SourceToken      string               `json:"source_token"`
	SourceAmount     string               `json:"source_amount"`
	StablecoinAmount *string              `json:"stablecoin_amount,omitempty"`
	StarkKey         string               `json:"stark_key"`
	PositionID       string               `json:"position_id"`
	Status           models.DepositStatus `json:"status"`
	Error            *string              `json:"error,omitempty"`
}

// GetDepositsResponse represents a page of deposits
type GetDepositsResponse struct {
	Deposits []DepositResponse `json:"deposits"`
}

// ==================== Conversion Events ====================

// ConversionEventResponse represents a persisted conversion audit event
type ConversionEventResponse struct {
	ID               string  `json:"id"`
	Sender           string  `json:"sender"`
	SourceToken      string  `json:"source_token"`
	SourceAmount     string  `json:"source_amount"`
	StablecoinAmount string  `json:"stablecoin_amount"`
	OccurredAt       *string `json:"occurred_at,omitempty"`
}

// GetConversionEventsResponse represents a page of conversion events
type GetConversionEventsResponse struct {
	Events []ConversionEventResponse `json:"events"`
}

// ==================== Admin ====================

// AdminRequest carries the caller of an owner-gated operation
type AdminRequest struct {
	Caller string `json:"caller"`
}

// ApproveSwapRequest asks the engine to grant an exchange a swap allowance
type ApproveSwapRequest struct {
	Caller   string `json:"caller"`
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
}

// TransferOwnershipRequest hands engine ownership to a new owner
type TransferOwnershipRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"new_owner"`
}

// StatusResponse reports the engine's administrative state
type StatusResponse struct {
	Paused bool   `json:"paused"`
	Owner  string `json:"owner"`
}

// ==================== Faucet ====================

// FaucetRequest mints sandbox funds to an account. An empty token mints
// the native asset.
type FaucetRequest struct {
	Account string `json:"account"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
