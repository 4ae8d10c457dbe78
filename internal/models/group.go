package models

// Group represents a named set of members who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Hostel Expenses").
	Name string `json:"name"`

	// Members is the list of user IDs currently in the group.
	Members []string `json:"members"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`

	// CreatedBy is the user ID that created the group.
	CreatedBy string `json:"created_by"`
}
