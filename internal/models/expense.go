package models

// Split is one member's monetary share of a single expense.
type Split struct {
	// UserID is the member this share belongs to.
	UserID string `json:"user_id"`

	// Amount is the share owed for this expense line.
	Amount float64 `json:"amount"`
}

// Expense represents a cost-sharing event. Immutable once created.
// The splits always sum to Amount within Tolerance; the split calculator
// enforces this before an expense is ever constructed.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// Description is the human-readable label (e.g., "Lunch").
	Description string `json:"description"`

	// Amount is the total amount paid.
	Amount float64 `json:"amount"`

	// PayerID is the user who paid the full amount.
	PayerID string `json:"payer_id"`

	// Splits are the per-user shares, including the payer's own share.
	Splits []Split `json:"splits"`

	// GroupID is the owning group, or empty for a direct expense
	// between two users.
	GroupID string `json:"group_id,omitempty"`

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64 `json:"created_at"`

	// CreatedBy is the user ID that recorded the expense.
	CreatedBy string `json:"created_by"`
}
