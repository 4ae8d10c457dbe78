package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/group"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/notify"
	"github.com/splitledger/splitledger/internal/storage"
	"github.com/splitledger/splitledger/internal/storage/sqlite"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestLedger(t *testing.T, store storage.Store) *Ledger {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	svc := NewLedger(store, notify.NewLogNotifier(), m)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("failed to load ledger state: %v", err)
	}
	return svc
}

func registerUser(t *testing.T, svc *Ledger, email, name string) *models.User {
	t.Helper()
	user := models.NewUser(email, name, "hash")
	if err := svc.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

func TestLedgerGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")
	carol := registerUser(t, svc, "carol@example.com", "Carol")

	g, err := svc.CreateGroup(ctx, "Trip", alice.ID, []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	if err := svc.AddUserToGroup(ctx, g.ID, carol.ID); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	account, err := svc.Group(g.ID)
	if err != nil {
		t.Fatalf("failed to look up group: %v", err)
	}
	if got := len(account.Members()); got != 3 {
		t.Fatalf("expected 3 members, got %d", got)
	}

	if _, err := svc.Group("missing"); err != ErrGroupNotFound {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := svc.CreateGroup(ctx, "Bad", alice.ID, []string{"ghost"}); err == nil {
		t.Error("expected error for unknown member")
	}
}

func TestLedgerExpenseAndSettle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")

	g, err := svc.CreateGroup(ctx, "Flat", alice.ID, []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	if _, err := svc.AddExpense(ctx, g.ID, "Rent", 1000, alice.ID, []string{alice.ID, bob.ID}, calculator.SplitEqual, nil, alice.ID); err != nil {
		t.Fatalf("failed to add expense: %v", err)
	}

	balances, err := svc.Balances(bob.ID, g.ID)
	if err != nil {
		t.Fatalf("failed to read balances: %v", err)
	}
	if got := balances[alice.ID]; math.Abs(got-(-500)) > 0.01 {
		t.Fatalf("expected bob to owe alice 500, got %.2f", got)
	}

	if _, err := svc.Settle(ctx, g.ID, bob.ID, alice.ID, 500, bob.ID, "rent"); err != nil {
		t.Fatalf("failed to settle: %v", err)
	}

	balances, err = svc.Balances(bob.ID, g.ID)
	if err != nil {
		t.Fatalf("failed to read balances: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("expected settled balances, got %v", balances)
	}

	expenses, err := svc.ListGroupExpenses(ctx, g.ID)
	if err != nil {
		t.Fatalf("failed to list expenses: %v", err)
	}
	if len(expenses) != 1 || expenses[0].Description != "Rent" {
		t.Errorf("unexpected expense history: %+v", expenses)
	}
	settlements, err := svc.ListGroupSettlements(ctx, g.ID)
	if err != nil {
		t.Fatalf("failed to list settlements: %v", err)
	}
	if len(settlements) != 1 || settlements[0].Amount != 500 {
		t.Errorf("unexpected settlement history: %+v", settlements)
	}
}

func TestLedgerSimplify(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")
	carol := registerUser(t, svc, "carol@example.com", "Carol")
	members := []string{alice.ID, bob.ID, carol.ID}

	g, err := svc.CreateGroup(ctx, "Cycle", alice.ID, members)
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	// A pays for B, B pays for C, C pays for A: a pure cycle that
	// simplification collapses entirely.
	pairs := [][2]string{{alice.ID, bob.ID}, {bob.ID, carol.ID}, {carol.ID, alice.ID}}
	for _, p := range pairs {
		if _, err := svc.AddExpense(ctx, g.ID, "Loop", 100, p[0], []string{p[1]}, calculator.SplitEqual, nil, p[0]); err != nil {
			t.Fatalf("failed to add expense: %v", err)
		}
	}

	snapshot, removed, err := svc.Simplify(g.ID)
	if err != nil {
		t.Fatalf("failed to simplify: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 settling edges removed, got %d", removed)
	}
	for _, userID := range members {
		if row := snapshot[userID]; len(row) != 0 {
			t.Errorf("expected empty row for %s after simplification, got %v", userID, row)
		}
	}
}

func TestLedgerDirectExpenses(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")

	if _, err := svc.AddDirectExpense(ctx, "Dinner", 60, alice.ID, bob.ID, calculator.SplitEqual, nil); err != nil {
		t.Fatalf("failed to add direct expense: %v", err)
	}

	balances, err := svc.Balances(alice.ID, "")
	if err != nil {
		t.Fatalf("failed to read direct balances: %v", err)
	}
	if got := balances[bob.ID]; math.Abs(got-30) > 0.01 {
		t.Fatalf("expected bob to owe alice 30, got %.2f", got)
	}

	owed, owing, err := svc.Totals(alice.ID)
	if err != nil {
		t.Fatalf("failed to read totals: %v", err)
	}
	if math.Abs(owed-30) > 0.01 || owing > 0.01 {
		t.Errorf("expected owed=30 owing=0, got owed=%.2f owing=%.2f", owed, owing)
	}

	if _, err := svc.SettleDirect(ctx, bob.ID, alice.ID, 30, "dinner"); err != nil {
		t.Fatalf("failed to settle direct: %v", err)
	}
	balances, err = svc.Balances(alice.ID, "")
	if err != nil {
		t.Fatalf("failed to read direct balances: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("expected settled direct balances, got %v", balances)
	}

	if _, err := svc.AddDirectExpense(ctx, "Bad", -5, alice.ID, bob.ID, calculator.SplitEqual, nil); err != group.ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.AddDirectExpense(ctx, "Ghost", 10, alice.ID, "ghost", calculator.SplitEqual, nil); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLedgerReplayRebuildsState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")
	carol := registerUser(t, svc, "carol@example.com", "Carol")
	members := []string{alice.ID, bob.ID, carol.ID}

	g, err := svc.CreateGroup(ctx, "Hostel", alice.ID, members)
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	if _, err := svc.AddExpense(ctx, g.ID, "Groceries", 300, alice.ID, members, calculator.SplitEqual, nil, alice.ID); err != nil {
		t.Fatalf("failed to add expense: %v", err)
	}
	if _, err := svc.Settle(ctx, g.ID, bob.ID, alice.ID, 100, bob.ID, ""); err != nil {
		t.Fatalf("failed to settle: %v", err)
	}
	if _, err := svc.AddDirectExpense(ctx, "Cab", 40, carol.ID, alice.ID, calculator.SplitEqual, nil); err != nil {
		t.Fatalf("failed to add direct expense: %v", err)
	}

	// A fresh instance over the same store must arrive at identical
	// balances by replaying the event history.
	reloaded := newTestLedger(t, store)

	for _, userID := range members {
		want, err := svc.Balances(userID, g.ID)
		if err != nil {
			t.Fatalf("failed to read balances: %v", err)
		}
		got, err := reloaded.Balances(userID, g.ID)
		if err != nil {
			t.Fatalf("failed to read reloaded balances: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("user %s: balance rows differ: got %v, want %v", userID, got, want)
		}
		for other, amount := range want {
			if math.Abs(got[other]-amount) > 0.01 {
				t.Errorf("user %s vs %s: got %.2f, want %.2f", userID, other, got[other], amount)
			}
		}
	}

	got, err := reloaded.Balances(carol.ID, "")
	if err != nil {
		t.Fatalf("failed to read reloaded direct balances: %v", err)
	}
	if math.Abs(got[alice.ID]-20) > 0.01 {
		t.Errorf("expected alice to owe carol 20 after reload, got %.2f", got[alice.ID])
	}
}

var errWriteFailed = errors.New("write failed")

// failingStore wraps a real store and fails expense and settlement writes
// on demand.
type failingStore struct {
	storage.Store
	failWrites bool
}

func (s *failingStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if s.failWrites {
		return errWriteFailed
	}
	return s.Store.CreateExpense(ctx, expense)
}

func (s *failingStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if s.failWrites {
		return errWriteFailed
	}
	return s.Store.CreateSettlement(ctx, settlement)
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Notify(recipientID, message string) {
	n.count++
}

func TestStoreFailureLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: newTestStore(t)}
	notifier := &countingNotifier{}
	svc := NewLedger(store, notifier, metrics.New(prometheus.NewRegistry()))
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("failed to load ledger state: %v", err)
	}

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")
	g, err := svc.CreateGroup(ctx, "Flat", alice.ID, []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	store.failWrites = true
	notifier.count = 0

	t.Run("group expense", func(t *testing.T) {
		if _, err := svc.AddExpense(ctx, g.ID, "Rent", 1000, alice.ID, []string{alice.ID, bob.ID}, calculator.SplitEqual, nil, alice.ID); !errors.Is(err, errWriteFailed) {
			t.Fatalf("expected write failure, got %v", err)
		}
		balances, err := svc.Balances(bob.ID, g.ID)
		if err != nil {
			t.Fatalf("failed to read balances: %v", err)
		}
		if len(balances) != 0 {
			t.Errorf("expected untouched balances after failed write, got %v", balances)
		}
	})

	t.Run("group settlement", func(t *testing.T) {
		if _, err := svc.Settle(ctx, g.ID, bob.ID, alice.ID, 100, bob.ID, ""); !errors.Is(err, errWriteFailed) {
			t.Fatalf("expected write failure, got %v", err)
		}
		balances, err := svc.Balances(bob.ID, g.ID)
		if err != nil {
			t.Fatalf("failed to read balances: %v", err)
		}
		if len(balances) != 0 {
			t.Errorf("expected untouched balances after failed write, got %v", balances)
		}
	})

	t.Run("direct expense", func(t *testing.T) {
		if _, err := svc.AddDirectExpense(ctx, "Dinner", 60, alice.ID, bob.ID, calculator.SplitEqual, nil); !errors.Is(err, errWriteFailed) {
			t.Fatalf("expected write failure, got %v", err)
		}
		balances, err := svc.Balances(alice.ID, "")
		if err != nil {
			t.Fatalf("failed to read direct balances: %v", err)
		}
		if len(balances) != 0 {
			t.Errorf("expected untouched direct balances after failed write, got %v", balances)
		}
	})

	t.Run("direct settlement", func(t *testing.T) {
		if _, err := svc.SettleDirect(ctx, bob.ID, alice.ID, 30, ""); !errors.Is(err, errWriteFailed) {
			t.Fatalf("expected write failure, got %v", err)
		}
		balances, err := svc.Balances(bob.ID, "")
		if err != nil {
			t.Fatalf("failed to read direct balances: %v", err)
		}
		if len(balances) != 0 {
			t.Errorf("expected untouched direct balances after failed write, got %v", balances)
		}
	})

	if notifier.count != 0 {
		t.Errorf("expected no notifications for failed writes, got %d", notifier.count)
	}

	// Writes go through again once the store recovers.
	store.failWrites = false
	if _, err := svc.AddExpense(ctx, g.ID, "Rent", 1000, alice.ID, []string{alice.ID, bob.ID}, calculator.SplitEqual, nil, alice.ID); err != nil {
		t.Fatalf("expected expense to post after store recovery: %v", err)
	}
	balances, err := svc.Balances(bob.ID, g.ID)
	if err != nil {
		t.Fatalf("failed to read balances: %v", err)
	}
	if got := balances[alice.ID]; math.Abs(got-(-500)) > 0.01 {
		t.Errorf("expected bob to owe alice 500, got %.2f", got)
	}
	if notifier.count == 0 {
		t.Error("expected notifications for the successful expense")
	}
}

func TestLedgerReplayHandlesDepartedMembers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestLedger(t, store)

	alice := registerUser(t, svc, "alice@example.com", "Alice")
	bob := registerUser(t, svc, "bob@example.com", "Bob")

	g, err := svc.CreateGroup(ctx, "Short stay", alice.ID, []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	if _, err := svc.AddExpense(ctx, g.ID, "Lunch", 50, alice.ID, []string{alice.ID, bob.ID}, calculator.SplitEqual, nil, alice.ID); err != nil {
		t.Fatalf("failed to add expense: %v", err)
	}
	if _, err := svc.Settle(ctx, g.ID, bob.ID, alice.ID, 25, bob.ID, ""); err != nil {
		t.Fatalf("failed to settle: %v", err)
	}
	if err := svc.RemoveUserFromGroup(ctx, g.ID, bob.ID); err != nil {
		t.Fatalf("failed to remove settled member: %v", err)
	}

	reloaded := newTestLedger(t, store)
	account, err := reloaded.Group(g.ID)
	if err != nil {
		t.Fatalf("failed to look up reloaded group: %v", err)
	}
	members := account.Members()
	if len(members) != 1 || members[0] != alice.ID {
		t.Errorf("expected only alice after reload, got %v", members)
	}
}
