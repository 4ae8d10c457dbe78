// Package ledger maintains pairwise signed balances between members.
//
// A Ledger stores balances[owner][counterparty] = amount, where a positive
// amount means the counterparty owes the owner. Every entry has a mirrored
// negation, so balances[A][B] == -balances[B][A] holds after every
// operation. Entries within Tolerance of zero are pruned; an absent entry
// means "settled".
package ledger

import (
	"errors"
	"math"
)

// Tolerance is the threshold below which a balance counts as settled.
const Tolerance = 0.01

// ErrUnknownMember is returned for queries about an owner the ledger does
// not track.
var ErrUnknownMember = errors.New("unknown ledger member")

// Snapshot is a plain copy of a ledger's balances, keyed owner →
// counterparty → signed amount.
type Snapshot map[string]map[string]float64

// Ledger is a pairwise signed-balance store for one scope (a group, or the
// shared direct-expense scope). Not safe for concurrent use; callers hold
// their own lock.
type Ledger struct {
	balances map[string]map[string]float64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]map[string]float64)}
}

// AddOwner registers an owner with an empty balance row. Adding an existing
// owner is a no-op.
func (l *Ledger) AddOwner(ownerID string) {
	if _, ok := l.balances[ownerID]; !ok {
		l.balances[ownerID] = make(map[string]float64)
	}
}

// HasOwner reports whether the ledger tracks the given owner.
func (l *Ledger) HasOwner(ownerID string) bool {
	_, ok := l.balances[ownerID]
	return ok
}

// RemoveOwner deletes the owner's row and every counterpart reference to it.
func (l *Ledger) RemoveOwner(ownerID string) {
	delete(l.balances, ownerID)
	for _, row := range l.balances {
		delete(row, ownerID)
	}
}

// Post credits ownerID against counterpartyID by amount: afterwards the
// counterparty owes the owner `amount` more (a negative amount records a
// credit the other way). Both mirrored entries are updated together and
// pruned when they fall within Tolerance of zero, preserving
// skew-symmetry. Unknown owners are registered implicitly.
func (l *Ledger) Post(ownerID, counterpartyID string, amount float64) {
	l.AddOwner(ownerID)
	l.AddOwner(counterpartyID)

	l.balances[ownerID][counterpartyID] += amount
	l.balances[counterpartyID][ownerID] -= amount

	if math.Abs(l.balances[ownerID][counterpartyID]) < Tolerance {
		delete(l.balances[ownerID], counterpartyID)
		delete(l.balances[counterpartyID], ownerID)
	}
}

// BalancesOf returns a copy of the owner's balance row.
func (l *Ledger) BalancesOf(ownerID string) (map[string]float64, error) {
	row, ok := l.balances[ownerID]
	if !ok {
		return nil, ErrUnknownMember
	}
	out := make(map[string]float64, len(row))
	for counterpartyID, amount := range row {
		out[counterpartyID] = amount
	}
	return out, nil
}

// IsSettled reports whether every balance for the owner is within
// Tolerance of zero.
func (l *Ledger) IsSettled(ownerID string) (bool, error) {
	row, ok := l.balances[ownerID]
	if !ok {
		return false, ErrUnknownMember
	}
	for _, amount := range row {
		if math.Abs(amount) > Tolerance {
			return false, nil
		}
	}
	return true, nil
}

// Net collapses the pairwise graph into one signed scalar per owner:
// positive means the owner is owed money overall, negative means they owe.
func (l *Ledger) Net() map[string]float64 {
	nets := make(map[string]float64, len(l.balances))
	for ownerID, row := range l.balances {
		var net float64
		for _, amount := range row {
			net += amount
		}
		nets[ownerID] = net
	}
	return nets
}

// Edges counts the settling edges: pairs with a nonzero balance. Each pair
// is counted once via its positive entry.
func (l *Ledger) Edges() int {
	var n int
	for _, row := range l.balances {
		for _, amount := range row {
			if amount > Tolerance {
				n++
			}
		}
	}
	return n
}

// Owners returns the IDs of all tracked owners in no particular order.
func (l *Ledger) Owners() []string {
	owners := make([]string, 0, len(l.balances))
	for ownerID := range l.balances {
		owners = append(owners, ownerID)
	}
	return owners
}

// Copy returns a Snapshot of the current balances.
func (l *Ledger) Copy() Snapshot {
	snap := make(Snapshot, len(l.balances))
	for ownerID, row := range l.balances {
		out := make(map[string]float64, len(row))
		for counterpartyID, amount := range row {
			out[counterpartyID] = amount
		}
		snap[ownerID] = out
	}
	return snap
}

// Totals splits a balance row into money owed to the owner and money the
// owner owes, both as positive numbers.
func Totals(balances map[string]float64) (owedToOwner, owedByOwner float64) {
	for _, amount := range balances {
		if amount > 0 {
			owedToOwner += amount
		} else {
			owedByOwner += -amount
		}
	}
	return owedToOwner, owedByOwner
}
