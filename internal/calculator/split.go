// Package calculator computes per-user expense shares.
package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/splitledger/splitledger/internal/models"
)

// SplitType selects the policy used to divide an expense.
type SplitType string

const (
	// SplitEqual divides the total evenly across all participants.
	SplitEqual SplitType = "equal"
	// SplitExact uses caller-supplied literal amounts per participant.
	SplitExact SplitType = "exact"
	// SplitPercentage uses caller-supplied percentages of the total.
	SplitPercentage SplitType = "percentage"
)

// tolerance for verifying that computed shares agree with the total.
const tolerance = 0.01

var (
	ErrNoParticipants   = errors.New("must have at least one participant")
	ErrValueCount       = errors.New("split values must match participant count")
	ErrSplitMismatch    = errors.New("split amounts do not sum to the total")
	ErrUnknownSplitType = errors.New("unknown split type")
)

// Splits computes the per-user shares of totalAmount for the given policy.
// participantIDs orders the output; values carries the exact amounts or
// percentages for SplitExact and SplitPercentage, and is ignored for
// SplitEqual. Shares are verified to sum to totalAmount within tolerance.
func Splits(splitType SplitType, totalAmount float64, participantIDs []string, values []float64) ([]models.Split, error) {
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}

	switch splitType {
	case SplitEqual:
		return equalSplits(totalAmount, participantIDs), nil
	case SplitExact:
		return exactSplits(totalAmount, participantIDs, values)
	case SplitPercentage:
		return percentageSplits(totalAmount, participantIDs, values)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitType, splitType)
	}
}

// equalSplits divides the total evenly using plain float division.
// Any sub-cent residual stays below tolerance for realistic inputs, so no
// remainder correction is applied.
func equalSplits(totalAmount float64, participantIDs []string) []models.Split {
	share := totalAmount / float64(len(participantIDs))
	splits := make([]models.Split, len(participantIDs))
	for i, userID := range participantIDs {
		splits[i] = models.Split{UserID: userID, Amount: share}
	}
	return splits
}

// exactSplits uses values[i] as the literal amount owed by participantIDs[i].
func exactSplits(totalAmount float64, participantIDs []string, values []float64) ([]models.Split, error) {
	if len(values) != len(participantIDs) {
		return nil, fmt.Errorf("%w: got %d values for %d participants", ErrValueCount, len(values), len(participantIDs))
	}

	var sum float64
	splits := make([]models.Split, len(participantIDs))
	for i, userID := range participantIDs {
		splits[i] = models.Split{UserID: userID, Amount: values[i]}
		sum += values[i]
	}

	if math.Abs(sum-totalAmount) > tolerance {
		return nil, fmt.Errorf("%w: amounts sum to %.2f, total is %.2f", ErrSplitMismatch, sum, totalAmount)
	}
	return splits, nil
}

// percentageSplits uses values[i] as the percentage of the total owed by
// participantIDs[i]. Percentages must sum to 100.
func percentageSplits(totalAmount float64, participantIDs []string, values []float64) ([]models.Split, error) {
	if len(values) != len(participantIDs) {
		return nil, fmt.Errorf("%w: got %d values for %d participants", ErrValueCount, len(values), len(participantIDs))
	}

	var percentSum float64
	splits := make([]models.Split, len(participantIDs))
	for i, userID := range participantIDs {
		splits[i] = models.Split{UserID: userID, Amount: totalAmount * values[i] / 100}
		percentSum += values[i]
	}

	if math.Abs(percentSum-100) > tolerance {
		return nil, fmt.Errorf("%w: percentages sum to %.2f", ErrSplitMismatch, percentSum)
	}
	return splits, nil
}
