package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := IntToUint32(123)
		require.NoError(t, err)
		assert.Equal(t, uint32(123), got)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestUint64ToUint32(t *testing.T) {
	got, err := Uint64ToUint32(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	_, err = Uint64ToUint32(math.MaxUint32 + 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestIntToUint64(t *testing.T) {
	got, err := IntToUint64(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)

	_, err = IntToUint64(-7)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	s, err := CheckedAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	p, err := CheckedMul(8, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), p)

	p, err = CheckedMul(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p)

	_, err = CheckedMul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}
