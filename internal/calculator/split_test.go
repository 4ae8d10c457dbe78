package calculator

import (
	"errors"
	"math"
	"testing"
)

func TestSplits(t *testing.T) {
	tests := []struct {
		name         string
		splitType    SplitType
		total        float64
		participants []string
		values       []float64
		wantErr      error
		wantAmounts  []float64
	}{
		{
			name:         "equal split four ways",
			splitType:    SplitEqual,
			total:        800.0,
			participants: []string{"u1", "u2", "u3", "u4"},
			wantAmounts:  []float64{200, 200, 200, 200},
		},
		{
			name:         "equal split with sub-cent residual",
			splitType:    SplitEqual,
			total:        100.0,
			participants: []string{"u1", "u2", "u3"},
			wantAmounts:  []float64{33.3333, 33.3333, 33.3333},
		},
		{
			name:         "exact split",
			splitType:    SplitExact,
			total:        700.0,
			participants: []string{"u1", "u3", "u4"},
			values:       []float64{200, 300, 200},
			wantAmounts:  []float64{200, 300, 200},
		},
		{
			name:         "exact split mismatched sum",
			splitType:    SplitExact,
			total:        700.0,
			participants: []string{"u1", "u3", "u4"},
			values:       []float64{200, 300, 300},
			wantErr:      ErrSplitMismatch,
		},
		{
			name:         "exact split wrong value count",
			splitType:    SplitExact,
			total:        700.0,
			participants: []string{"u1", "u3", "u4"},
			values:       []float64{350, 350},
			wantErr:      ErrValueCount,
		},
		{
			name:         "percentage split",
			splitType:    SplitPercentage,
			total:        200.0,
			participants: []string{"u1", "u2", "u3"},
			values:       []float64{50, 25, 25},
			wantAmounts:  []float64{100, 50, 50},
		},
		{
			name:         "percentage split not summing to 100",
			splitType:    SplitPercentage,
			total:        200.0,
			participants: []string{"u1", "u2"},
			values:       []float64{50, 40},
			wantErr:      ErrSplitMismatch,
		},
		{
			name:         "percentage split wrong value count",
			splitType:    SplitPercentage,
			total:        200.0,
			participants: []string{"u1", "u2"},
			values:       []float64{100},
			wantErr:      ErrValueCount,
		},
		{
			name:         "no participants",
			splitType:    SplitEqual,
			total:        10.0,
			participants: []string{},
			wantErr:      ErrNoParticipants,
		},
		{
			name:         "unknown split type",
			splitType:    SplitType("weighted"),
			total:        10.0,
			participants: []string{"u1"},
			wantErr:      ErrUnknownSplitType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := Splits(tt.splitType, tt.total, tt.participants, tt.values)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Splits() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Splits() unexpected error: %v", err)
			}

			if len(splits) != len(tt.participants) {
				t.Fatalf("got %d splits, want %d", len(splits), len(tt.participants))
			}
			var sum float64
			for i, split := range splits {
				if split.UserID != tt.participants[i] {
					t.Errorf("split %d user = %s, want %s", i, split.UserID, tt.participants[i])
				}
				if math.Abs(split.Amount-tt.wantAmounts[i]) > 0.01 {
					t.Errorf("split %d amount = %v, want %v", i, split.Amount, tt.wantAmounts[i])
				}
				sum += split.Amount
			}
			if math.Abs(sum-tt.total) > 0.01 {
				t.Errorf("splits sum to %v, want total %v", sum, tt.total)
			}
		})
	}
}
