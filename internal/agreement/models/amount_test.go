package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "airdrop/pkg/domain-errors"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		decimals uint8
		want     uint64
		overflow bool
	}{
		{name: "zero decimals is identity", amount: 42, decimals: 0, want: 42},
		{name: "nine decimals", amount: 3, decimals: 9, want: 3_000_000_000},
		{name: "largest factor", amount: 1, decimals: 19, want: 10_000_000_000_000_000_000},
		{name: "zero amount never overflows", amount: 0, decimals: 19, want: 0},
		{name: "max amount with decimals", amount: math.MaxUint64, decimals: 1, overflow: true},
		{name: "product overflows", amount: 2, decimals: 19, overflow: true},
		{name: "factor overflows", amount: 1, decimals: 20, overflow: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBaseUnits(tt.amount, tt.decimals)
			if tt.overflow {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeArithmeticOverflow))
				assert.True(t, errors.Is(err, ErrArithmeticOverflow))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
