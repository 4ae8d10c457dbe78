package ledger

import "sort"

// Simplify collapses an arbitrary pairwise-debt graph into an equivalent
// ledger with fewer settling edges. Net position per member is conserved
// exactly; only which pairs settle with each other changes.
//
// The algorithm nets each member's position, partitions members into
// creditors and debtors, sorts both sides largest-first, then greedily
// matches the current largest creditor and debtor with min(remaining)
// transfers. Largest-first matching keeps the edge count low in practice
// but is a heuristic, not a provably minimal-edge solver.
//
// Runs in O(M log M) for M members. An empty or fully settled ledger
// yields a ledger with no edges.
func Simplify(l *Ledger) *Ledger {
	type position struct {
		userID string
		amount float64 // always positive
	}

	var creditors, debtors []position
	for userID, net := range l.Net() {
		switch {
		case net > Tolerance:
			creditors = append(creditors, position{userID, net})
		case net < -Tolerance:
			debtors = append(debtors, position{userID, -net})
		}
	}

	// Largest first; ties broken by ID so the output is deterministic.
	byAmount := func(ps []position) func(i, j int) bool {
		return func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].userID < ps[j].userID
		}
	}
	sort.Slice(creditors, byAmount(creditors))
	sort.Slice(debtors, byAmount(debtors))

	simplified := New()
	for _, ownerID := range l.Owners() {
		simplified.AddOwner(ownerID)
	}

	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		settle := creditors[i].amount
		if debtors[j].amount < settle {
			settle = debtors[j].amount
		}

		// Debtor owes creditor in the new ledger.
		simplified.Post(creditors[i].userID, debtors[j].userID, settle)

		creditors[i].amount -= settle
		debtors[j].amount -= settle

		if creditors[i].amount < Tolerance {
			i++
		}
		if debtors[j].amount < Tolerance {
			j++
		}
	}

	return simplified
}
