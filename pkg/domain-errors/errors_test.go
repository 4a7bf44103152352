package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errReason = errors.New("reason")

func TestWrap_PreservesCause(t *testing.T) {
	err := Wrap(errReason, CodeValidation, "agreement rejected")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errReason))
	assert.True(t, HasCode(err, CodeValidation))
	assert.Equal(t, "agreement rejected: reason", err.Error())
}

func TestHasCode_WalksNestedCodes(t *testing.T) {
	inner := New(CodeInsufficientFunds, "balance too low")
	outer := Wrap(inner, CodeInternal, "transfer failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeInsufficientFunds))
	assert.False(t, HasCode(outer, CodeValidation))
	assert.Equal(t, CodeInternal, CodeOf(outer))
}

func TestCodeOf(t *testing.T) {
	t.Run("coded error behind fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("context: %w", New(CodeArithmeticOverflow, "overflow"))
		assert.Equal(t, CodeArithmeticOverflow, CodeOf(err))
	})

	t.Run("plain error defaults to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}
