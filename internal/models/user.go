package models

// User represents a registered user account.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// DisplayName is the name shown to other members.
	DisplayName string `json:"display_name"`

	// Email is the user's email address (unique). Used for login.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// Never serialized in API responses.
	PasswordHash string `json:"-"`

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64 `json:"created_at"`
}

// NewUser creates a user record ready for persistence. ID and CreatedAt
// are backfilled by the store.
func NewUser(email, displayName, passwordHash string) *User {
	return &User{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: passwordHash,
	}
}
