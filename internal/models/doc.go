// Package models defines the core domain records for splitledger.
//
// # Models
//
//   - User: a registered account with a password hash for login
//   - Group: a named set of members who share expenses
//   - Expense: a cost-sharing event and its per-user splits
//   - Split: one member's monetary share of a single expense
//   - Settlement: a payment between members that clears debt
//
// Expenses and Settlements are append-only: once created they are never
// mutated. Balances are derived state, rebuilt from the event history on
// startup (see internal/service).
//
// # Design Principles
//
//  1. **ID strings, not pointers**: relationships reference UUIDs to avoid
//     circular references between records.
//  2. **Stores backfill identity**: ID and CreatedAt are assigned by the
//     storage layer when left empty, so callers construct plain literals.
//  3. **Money is float64 with a fixed tolerance**: amounts within
//     Tolerance of zero are treated as settled everywhere.
package models

// Tolerance is the comparison threshold for money amounts. Balances whose
// magnitude falls below it are treated as zero and pruned.
const Tolerance = 0.01
