// Package service implements the ledger facade: the explicitly constructed
// registry of users and group accounts that every caller (HTTP handlers,
// tests) operates through.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/group"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/notify"
	"github.com/splitledger/splitledger/internal/storage"
)

var (
	// ErrUserNotFound is returned when an operation references an
	// unregistered user.
	ErrUserNotFound = errors.New("user not found")
	// ErrGroupNotFound is returned when an operation references an
	// unknown group.
	ErrGroupNotFound = errors.New("group not found")
)

// Ledger is the service facade. It owns the user registry, the group
// accounts, and the shared direct ledger for expenses outside any group.
// All state lives in memory; the store records the append-only event
// history that Load replays on startup.
type Ledger struct {
	store    storage.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	users  map[string]*models.User
	groups map[string]*group.Account

	directMu sync.Mutex
	direct   *ledger.Ledger
}

// NewLedger creates an empty ledger service.
func NewLedger(store storage.Store, notifier notify.Notifier, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:    store,
		notifier: notifier,
		metrics:  m,
		users:    make(map[string]*models.User),
		groups:   make(map[string]*group.Account),
		direct:   ledger.New(),
	}
}

// Load rebuilds all in-memory state by replaying the persisted event
// history: users, groups and memberships first, then every expense and
// settlement in creation order. Simplification swaps are not events, so a
// reloaded group starts from the equivalent unsimplified graph; net
// positions are identical.
func (l *Ledger) Load(ctx context.Context) error {
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	for _, user := range users {
		l.users[user.ID] = user
		l.direct.AddOwner(user.ID)
	}

	groups, err := l.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	for _, g := range groups {
		account := group.New(g.ID, g.Name, l.notifier)
		for _, userID := range g.Members {
			account.AddMember(userID)
		}
		l.groups[g.ID] = account
	}

	expenses, err := l.store.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("failed to load expenses: %w", err)
	}
	settlements, err := l.store.ListSettlements(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settlements: %w", err)
	}

	// Members who settled up and left still appear in the history, so
	// re-add everyone the events reference before replaying, then remove
	// the departed members again (their balances net out by the leave
	// guard, so removal cannot fail).
	departed := make(map[string]map[string]bool)
	ensureMember := func(groupID, userID string) {
		account, ok := l.groups[groupID]
		if !ok {
			return
		}
		if !containsID(account.Members(), userID) {
			account.AddMember(userID)
			if departed[groupID] == nil {
				departed[groupID] = make(map[string]bool)
			}
			departed[groupID][userID] = true
		}
	}

	for _, expense := range expenses {
		if expense.GroupID != "" {
			ensureMember(expense.GroupID, expense.PayerID)
			for _, split := range expense.Splits {
				ensureMember(expense.GroupID, split.UserID)
			}
		}
	}
	for _, settlement := range settlements {
		if settlement.GroupID != "" {
			ensureMember(settlement.GroupID, settlement.FromUserID)
			ensureMember(settlement.GroupID, settlement.ToUserID)
		}
	}

	for _, expense := range expenses {
		if expense.GroupID == "" {
			l.applyDirectExpense(expense)
			continue
		}
		account, ok := l.groups[expense.GroupID]
		if !ok {
			slog.Warn("expense references unknown group", "expense_id", expense.ID, "group_id", expense.GroupID)
			continue
		}
		if err := account.ApplyExpense(expense); err != nil {
			return fmt.Errorf("failed to replay expense %s: %w", expense.ID, err)
		}
	}

	for _, settlement := range settlements {
		if settlement.GroupID == "" {
			l.directMu.Lock()
			l.direct.Post(settlement.FromUserID, settlement.ToUserID, settlement.Amount)
			l.directMu.Unlock()
			continue
		}
		account, ok := l.groups[settlement.GroupID]
		if !ok {
			slog.Warn("settlement references unknown group", "settlement_id", settlement.ID, "group_id", settlement.GroupID)
			continue
		}
		if err := account.ApplySettlement(settlement); err != nil {
			return fmt.Errorf("failed to replay settlement %s: %w", settlement.ID, err)
		}
	}

	for groupID, userIDs := range departed {
		account := l.groups[groupID]
		for userID := range userIDs {
			if err := account.RemoveMember(userID); err != nil {
				return fmt.Errorf("failed to re-remove departed member %s from group %s: %w", userID, groupID, err)
			}
		}
	}

	slog.Info("ledger state rebuilt",
		"users", len(l.users),
		"groups", len(l.groups),
		"expenses", len(expenses),
		"settlements", len(settlements),
	)
	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// CreateUser persists a new user and registers it with the direct ledger.
// Together with GetUserByEmail/GetUserByID this satisfies auth.UserStorage,
// so registrations through the authenticator land here.
func (l *Ledger) CreateUser(ctx context.Context, user *models.User) error {
	if err := l.store.CreateUser(ctx, user); err != nil {
		return err
	}

	l.mu.Lock()
	l.users[user.ID] = user
	l.mu.Unlock()

	l.directMu.Lock()
	l.direct.AddOwner(user.ID)
	l.directMu.Unlock()

	slog.Info("user created", "user_id", user.ID, "email", user.Email)
	return nil
}

// GetUserByEmail retrieves a user by email. Returns (nil, nil) when absent.
func (l *Ledger) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return l.store.GetUserByEmail(ctx, email)
}

// GetUserByID retrieves a user by ID. Returns (nil, nil) when absent.
func (l *Ledger) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	l.mu.RLock()
	user, ok := l.users[id]
	l.mu.RUnlock()
	if ok {
		return user, nil
	}
	return l.store.GetUserByID(ctx, id)
}

// hasUser must not be called with l.mu held.
func (l *Ledger) hasUser(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.users[userID]
	return ok
}

// CreateGroup creates a group with the given initial members.
func (l *Ledger) CreateGroup(ctx context.Context, name, createdBy string, memberIDs []string) (*models.Group, error) {
	for _, userID := range memberIDs {
		if !l.hasUser(userID) {
			return nil, fmt.Errorf("member %s: %w", userID, ErrUserNotFound)
		}
	}

	g := &models.Group{
		ID:        uuid.New().String(),
		Name:      name,
		Members:   memberIDs,
		CreatedAt: time.Now().Unix(),
		CreatedBy: createdBy,
	}
	if err := l.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}

	account := group.New(g.ID, g.Name, l.notifier)
	for _, userID := range memberIDs {
		account.AddMember(userID)
	}

	l.mu.Lock()
	l.groups[g.ID] = account
	l.mu.Unlock()

	slog.Info("group created", "group_id", g.ID, "name", name, "members", len(memberIDs))
	return g, nil
}

// Group returns the account for the given group ID.
func (l *Ledger) Group(groupID string) (*group.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return account, nil
}

// AddUserToGroup adds a registered user to a group.
func (l *Ledger) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	account, err := l.Group(groupID)
	if err != nil {
		return err
	}
	if !l.hasUser(userID) {
		return ErrUserNotFound
	}

	if err := l.store.AddGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	account.AddMember(userID)
	slog.Info("member added", "group_id", groupID, "user_id", userID)
	return nil
}

// RemoveUserFromGroup removes a user from a group. Fails with
// group.ErrOpenBalance while the user still has unsettled balances.
func (l *Ledger) RemoveUserFromGroup(ctx context.Context, groupID, userID string) error {
	account, err := l.Group(groupID)
	if err != nil {
		return err
	}

	if err := account.RemoveMember(userID); err != nil {
		return err
	}
	if err := l.store.RemoveGroupMember(ctx, groupID, userID); err != nil {
		slog.Error("failed to persist member removal", "group_id", groupID, "user_id", userID, "error", err)
		return err
	}
	slog.Info("member removed", "group_id", groupID, "user_id", userID)
	return nil
}

// AddExpense persists a cost-sharing event and posts it against a group.
// The ledger is only touched, and members only notified, after the store
// write succeeds: a persistence failure leaves the balances unchanged.
func (l *Ledger) AddExpense(ctx context.Context, groupID, description string, amount float64, payerID string, participantIDs []string, splitType calculator.SplitType, values []float64, createdBy string) (*models.Expense, error) {
	account, err := l.Group(groupID)
	if err != nil {
		return nil, err
	}

	expense, err := account.NewExpense(description, amount, payerID, participantIDs, splitType, values, createdBy)
	if err != nil {
		return nil, err
	}

	if err := l.store.CreateExpense(ctx, expense); err != nil {
		slog.Error("failed to persist expense", "expense_id", expense.ID, "error", err)
		return nil, err
	}
	if err := account.PostExpense(expense); err != nil {
		return nil, err
	}

	l.metrics.ExpensesPosted.Inc()
	slog.Info("expense posted", "expense_id", expense.ID, "group_id", groupID, "amount", amount, "payer_id", payerID)
	return expense, nil
}

// Settle persists a payment between two group members and posts it.
// Persist-first, like AddExpense.
func (l *Ledger) Settle(ctx context.Context, groupID, payerID, payeeID string, amount float64, createdBy, note string) (*models.Settlement, error) {
	account, err := l.Group(groupID)
	if err != nil {
		return nil, err
	}

	settlement, err := account.NewSettlement(payerID, payeeID, amount, createdBy, note)
	if err != nil {
		return nil, err
	}

	if err := l.store.CreateSettlement(ctx, settlement); err != nil {
		slog.Error("failed to persist settlement", "settlement_id", settlement.ID, "error", err)
		return nil, err
	}
	if err := account.PostSettlement(settlement); err != nil {
		return nil, err
	}

	l.metrics.SettlementsPosted.Inc()
	slog.Info("settlement posted", "settlement_id", settlement.ID, "group_id", groupID, "amount", amount)
	return settlement, nil
}

// Simplify collapses a group's debt graph into a minimal set of settling
// transfers. It returns the new balance snapshot and the number of settling
// edges removed.
func (l *Ledger) Simplify(groupID string) (ledger.Snapshot, int, error) {
	account, err := l.Group(groupID)
	if err != nil {
		return nil, 0, err
	}

	snapshot, removed := account.Simplify()
	l.metrics.SimplifyRuns.Inc()
	if removed > 0 {
		l.metrics.EdgesRemoved.Add(float64(removed))
	}
	slog.Info("debts simplified", "group_id", groupID, "edges_removed", removed)
	return snapshot, removed, nil
}

// Balances returns a member's balance row. With an empty groupID it reads
// the direct ledger; otherwise the group's ledger.
func (l *Ledger) Balances(ownerID, groupID string) (map[string]float64, error) {
	if groupID == "" {
		l.directMu.Lock()
		defer l.directMu.Unlock()
		return l.direct.BalancesOf(ownerID)
	}

	account, err := l.Group(groupID)
	if err != nil {
		return nil, err
	}
	return account.Balances(ownerID)
}

// Totals returns how much the user is owed and owes on the direct ledger.
func (l *Ledger) Totals(userID string) (owed, owing float64, err error) {
	balances, err := l.Balances(userID, "")
	if err != nil {
		return 0, 0, err
	}
	owed, owing = ledger.Totals(balances)
	return owed, owing, nil
}

// AddDirectExpense posts a two-party expense outside any group: the payer
// is credited the other participant's share on the direct ledger.
func (l *Ledger) AddDirectExpense(ctx context.Context, description string, amount float64, payerID, otherID string, splitType calculator.SplitType, values []float64) (*models.Expense, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, group.ErrInvalidAmount
	}
	if !l.hasUser(payerID) || !l.hasUser(otherID) {
		return nil, ErrUserNotFound
	}

	splits, err := calculator.Splits(splitType, amount, []string{payerID, otherID}, values)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		ID:          uuid.New().String(),
		Description: description,
		Amount:      amount,
		PayerID:     payerID,
		Splits:      splits,
		CreatedAt:   time.Now().Unix(),
		CreatedBy:   payerID,
	}

	// Persist before posting so a store failure leaves the ledger untouched.
	if err := l.store.CreateExpense(ctx, expense); err != nil {
		slog.Error("failed to persist direct expense", "expense_id", expense.ID, "error", err)
		return nil, err
	}
	l.applyDirectExpense(expense)

	l.metrics.ExpensesPosted.Inc()
	message := fmt.Sprintf("New expense added: %s (%.2f)", description, amount)
	l.notifier.Notify(payerID, message)
	l.notifier.Notify(otherID, message)
	return expense, nil
}

func (l *Ledger) applyDirectExpense(expense *models.Expense) {
	l.directMu.Lock()
	defer l.directMu.Unlock()
	for _, split := range expense.Splits {
		if split.UserID != expense.PayerID {
			l.direct.Post(expense.PayerID, split.UserID, split.Amount)
		}
	}
}

// SettleDirect records a payment between two users on the direct ledger.
func (l *Ledger) SettleDirect(ctx context.Context, payerID, payeeID string, amount float64, note string) (*models.Settlement, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, group.ErrInvalidAmount
	}
	if !l.hasUser(payerID) || !l.hasUser(payeeID) {
		return nil, ErrUserNotFound
	}

	settlement := &models.Settlement{
		ID:         uuid.New().String(),
		FromUserID: payerID,
		ToUserID:   payeeID,
		Amount:     amount,
		CreatedAt:  time.Now().Unix(),
		CreatedBy:  payerID,
		Note:       note,
	}

	// Persist before posting so a store failure leaves the ledger untouched.
	if err := l.store.CreateSettlement(ctx, settlement); err != nil {
		slog.Error("failed to persist direct settlement", "settlement_id", settlement.ID, "error", err)
		return nil, err
	}
	l.directMu.Lock()
	l.direct.Post(payerID, payeeID, amount)
	l.directMu.Unlock()

	l.metrics.SettlementsPosted.Inc()
	message := fmt.Sprintf("Settlement: %s paid %s %.2f", payerID, payeeID, amount)
	l.notifier.Notify(payerID, message)
	l.notifier.Notify(payeeID, message)
	return settlement, nil
}

// ListGroupExpenses returns a group's persisted expense history.
func (l *Ledger) ListGroupExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	if _, err := l.Group(groupID); err != nil {
		return nil, err
	}
	return l.store.ListExpensesByGroup(ctx, groupID)
}

// ListGroupSettlements returns a group's persisted settlement history.
func (l *Ledger) ListGroupSettlements(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	if _, err := l.Group(groupID); err != nil {
		return nil, err
	}
	return l.store.ListSettlementsByGroup(ctx, groupID)
}
