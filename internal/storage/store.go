// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/splitledger/splitledger/internal/models"
)

// Store defines the persistence interface for the ledger service. Expenses
// and settlements form an append-only event history; balances are derived
// by replaying it, so the store never records balances directly.
//
// The abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the service layer.
type Store interface {
	// CreateUser persists a new user. ID and CreatedAt are backfilled
	// when empty.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by email address. Returns
	// (nil, nil) when no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID. Returns (nil, nil) when no
	// such user exists.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// ListUsers returns all users ordered by creation time.
	ListUsers(ctx context.Context) ([]*models.User, error)

	// CreateGroup persists a new group and its initial member list.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group, including its member list.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups returns all groups with their member lists.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddGroupMember records a user joining a group.
	AddGroupMember(ctx context.Context, groupID, userID string) error

	// RemoveGroupMember records a user leaving a group.
	RemoveGroupMember(ctx context.Context, groupID, userID string) error

	// CreateExpense persists an expense and its splits atomically.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// ListExpenses returns every expense in creation order. Feeds the
	// startup replay.
	ListExpenses(ctx context.Context) ([]*models.Expense, error)

	// ListExpensesByGroup returns a group's expenses in creation order.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// CreateSettlement persists a settlement.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error

	// ListSettlements returns every settlement in creation order. Feeds
	// the startup replay.
	ListSettlements(ctx context.Context) ([]*models.Settlement, error)

	// ListSettlementsByGroup returns a group's settlements in creation order.
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)

	// Close releases any resources held by the store.
	Close() error
}
