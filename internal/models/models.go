package models

// DepositKind distinguishes the three deposit entry variants.
type DepositKind string

const (
	DepositKindDirect DepositKind = "DIRECT"
	DepositKindERC20  DepositKind = "ERC20"
	DepositKindNative DepositKind = "NATIVE"
)

// DepositStatus is the terminal outcome of a deposit attempt. The engine is
// synchronous, so every recorded attempt is already settled or rolled back.
type DepositStatus string

const (
	DepositStatusSucceeded DepositStatus = "SUCCEEDED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

// Deposit is a recorded deposit attempt. Amounts are decimal strings in
// base units.
type Deposit struct {
	ID               string        `db:"id"`
	Sender           string        `db:"sender"`
	Kind             DepositKind   `db:"kind"`
	SourceToken      string        `db:"source_token"`
	SourceAmount     string        `db:"source_amount"`
	StablecoinAmount *string       `db:"stablecoin_amount"` // nil for failed attempts
	StarkKey         string        `db:"stark_key"`
	PositionID       string        `db:"position_id"`
	Status           DepositStatus `db:"status"`
	ErrorMessage     *string       `db:"error_message"`
	CreatedAt        *string       `db:"created_at"`
}

// ConversionEvent is the persisted audit record of a converted deposit.
type ConversionEvent struct {
	ID               string  `db:"id"`
	Sender           string  `db:"sender"`
	SourceToken      string  `db:"source_token"`
	SourceAmount     string  `db:"source_amount"`
	StablecoinAmount string  `db:"stablecoin_amount"`
	OccurredAt       *string `db:"occurred_at"`
}
