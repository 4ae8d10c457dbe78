// Package group implements the group account: membership, its balance
// ledger, and the operations that post expenses and settlements against it.
package group

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/notify"
)

var (
	// ErrInvalidAmount is returned for non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("amount must be a positive finite number")
	// ErrNotAMember is returned when an operation references a user who is
	// not a current member of the group.
	ErrNotAMember = errors.New("user is not a member of this group")
	// ErrOpenBalance blocks removal of a member with unsettled balances.
	ErrOpenBalance = errors.New("member has an open balance")
)

// Account owns a group's membership, its ledger, and its expense log.
// Membership and ledger ownership stay in bijection: a user ID appears in
// the member list iff the ledger tracks it.
//
// All operations run under one coarse per-group mutex, including the
// read-modify-replace sequence of Simplify.
type Account struct {
	mu       sync.Mutex
	id       string
	name     string
	members  []string
	ledger   *ledger.Ledger
	expenses map[string]*models.Expense
	notifier notify.Notifier
}

// New creates an empty group account.
func New(id, name string, notifier notify.Notifier) *Account {
	return &Account{
		id:       id,
		name:     name,
		ledger:   ledger.New(),
		expenses: make(map[string]*models.Expense),
		notifier: notifier,
	}
}

// ID returns the group's identifier.
func (a *Account) ID() string { return a.id }

// Name returns the group's display name.
func (a *Account) Name() string { return a.name }

// Members returns a copy of the current member list.
func (a *Account) Members() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.members))
	copy(out, a.members)
	return out
}

// isMember must be called with the mutex held.
func (a *Account) isMember(userID string) bool {
	return a.ledger.HasOwner(userID)
}

// AddMember adds a user to the group with an empty ledger row. Adding an
// existing member is a no-op.
func (a *Account) AddMember(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isMember(userID) {
		return
	}
	a.members = append(a.members, userID)
	a.ledger.AddOwner(userID)
}

// RemoveMember removes a user from the group. It fails with ErrOpenBalance
// unless every balance of that user is settled; on success all counterpart
// references to the user are deleted as well.
func (a *Account) RemoveMember(userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isMember(userID) {
		return ErrNotAMember
	}
	settled, err := a.ledger.IsSettled(userID)
	if err != nil {
		return err
	}
	if !settled {
		return ErrOpenBalance
	}

	for i, id := range a.members {
		if id == userID {
			a.members = append(a.members[:i], a.members[i+1:]...)
			break
		}
	}
	a.ledger.RemoveOwner(userID)
	return nil
}

// NewExpense validates a cost-sharing event and builds its immutable
// record without touching the ledger. Callers persist the record first and
// post it with PostExpense only once the write succeeds, so a storage
// failure leaves no trace in the balances.
func (a *Account) NewExpense(description string, amount float64, payerID string, participantIDs []string, splitType calculator.SplitType, values []float64, createdBy string) (*models.Expense, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	if !a.isMember(payerID) {
		return nil, fmt.Errorf("payer %s: %w", payerID, ErrNotAMember)
	}
	for _, userID := range participantIDs {
		if !a.isMember(userID) {
			return nil, fmt.Errorf("participant %s: %w", userID, ErrNotAMember)
		}
	}

	splits, err := calculator.Splits(splitType, amount, participantIDs, values)
	if err != nil {
		return nil, err
	}

	return &models.Expense{
		ID:          uuid.New().String(),
		Description: description,
		Amount:      amount,
		PayerID:     payerID,
		Splits:      splits,
		GroupID:     a.id,
		CreatedAt:   time.Now().Unix(),
		CreatedBy:   createdBy,
	}, nil
}

// AddExpense validates, posts, and announces an expense in one step. It is
// the purely in-memory path; persisting callers use NewExpense and
// PostExpense around the store write instead.
func (a *Account) AddExpense(description string, amount float64, payerID string, participantIDs []string, splitType calculator.SplitType, values []float64, createdBy string) (*models.Expense, error) {
	expense, err := a.NewExpense(description, amount, payerID, participantIDs, splitType, values, createdBy)
	if err != nil {
		return nil, err
	}
	if err := a.PostExpense(expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// PostExpense applies an expense to the ledger and notifies all members.
func (a *Account) PostExpense(expense *models.Expense) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.applyExpense(expense); err != nil {
		return err
	}
	a.notifyAll(fmt.Sprintf("New expense added: %s (%.2f)", expense.Description, expense.Amount))
	return nil
}

// ApplyExpense replays a persisted expense against the ledger without
// generating notifications. Used to rebuild state on startup.
func (a *Account) ApplyExpense(expense *models.Expense) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyExpense(expense)
}

// applyExpense must be called with the mutex held.
func (a *Account) applyExpense(expense *models.Expense) error {
	if !a.isMember(expense.PayerID) {
		return fmt.Errorf("payer %s: %w", expense.PayerID, ErrNotAMember)
	}
	for _, split := range expense.Splits {
		if !a.isMember(split.UserID) {
			return fmt.Errorf("participant %s: %w", split.UserID, ErrNotAMember)
		}
	}
	a.postExpense(expense)
	return nil
}

// postExpense must be called with the mutex held.
func (a *Account) postExpense(expense *models.Expense) {
	for _, split := range expense.Splits {
		if split.UserID != expense.PayerID {
			a.ledger.Post(expense.PayerID, split.UserID, split.Amount)
		}
	}
	a.expenses[expense.ID] = expense
}

// NewSettlement validates a payment between two members and builds its
// record without touching the ledger. Same persist-then-post contract as
// NewExpense.
func (a *Account) NewSettlement(payerID, payeeID string, amount float64, createdBy, note string) (*models.Settlement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	if !a.isMember(payerID) || !a.isMember(payeeID) {
		return nil, ErrNotAMember
	}

	return &models.Settlement{
		ID:         uuid.New().String(),
		GroupID:    a.id,
		FromUserID: payerID,
		ToUserID:   payeeID,
		Amount:     amount,
		CreatedAt:  time.Now().Unix(),
		CreatedBy:  createdBy,
		Note:       note,
	}, nil
}

// Settle records that payerID paid payeeID the given amount in one step,
// reducing the payer's outstanding debt, and notifies all members. Purely
// in-memory; persisting callers use NewSettlement and PostSettlement.
func (a *Account) Settle(payerID, payeeID string, amount float64, createdBy, note string) (*models.Settlement, error) {
	settlement, err := a.NewSettlement(payerID, payeeID, amount, createdBy, note)
	if err != nil {
		return nil, err
	}
	if err := a.PostSettlement(settlement); err != nil {
		return nil, err
	}
	return settlement, nil
}

// PostSettlement applies a settlement to the ledger and notifies all members.
func (a *Account) PostSettlement(settlement *models.Settlement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.applySettlement(settlement); err != nil {
		return err
	}
	a.notifyAll(fmt.Sprintf("Settlement: %s paid %s %.2f", settlement.FromUserID, settlement.ToUserID, settlement.Amount))
	return nil
}

// ApplySettlement replays a persisted settlement without notifications.
func (a *Account) ApplySettlement(settlement *models.Settlement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applySettlement(settlement)
}

// applySettlement must be called with the mutex held.
func (a *Account) applySettlement(settlement *models.Settlement) error {
	if !a.isMember(settlement.FromUserID) || !a.isMember(settlement.ToUserID) {
		return ErrNotAMember
	}
	a.ledger.Post(settlement.FromUserID, settlement.ToUserID, settlement.Amount)
	return nil
}

// Balances returns the member's balance row against every counterparty.
func (a *Account) Balances(userID string) (map[string]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.BalancesOf(userID)
}

// IsSettled reports whether the member owes and is owed nothing.
func (a *Account) IsSettled(userID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.IsSettled(userID)
}

// Simplify replaces the group ledger with an equivalent minimal-edge
// ledger and returns the new balances plus the number of settling edges
// removed. The swap happens under the group mutex, so it can never
// interleave with an expense post.
func (a *Account) Simplify() (ledger.Snapshot, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.ledger.Edges()
	a.ledger = ledger.Simplify(a.ledger)
	removed := before - a.ledger.Edges()

	a.notifyAll(fmt.Sprintf("Debts have been simplified for group %s", a.name))
	return a.ledger.Copy(), removed
}

// Expenses returns the group's expense log in no particular order.
func (a *Account) Expenses() []*models.Expense {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*models.Expense, 0, len(a.expenses))
	for _, e := range a.expenses {
		out = append(out, e)
	}
	return out
}

// notifyAll must be called with the mutex held.
func (a *Account) notifyAll(message string) {
	if a.notifier == nil {
		return
	}
	for _, userID := range a.members {
		a.notifier.Notify(userID, message)
	}
}
