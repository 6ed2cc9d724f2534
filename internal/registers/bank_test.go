package registers

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBank_Size(t *testing.T) {
	assert.Equal(t, 100, NewBank(100).Len())
	assert.Equal(t, 1, NewBank(0).Len())
	assert.Equal(t, MaxRegisters, NewBank(MaxRegisters+10).Len())
}

func TestBank_ReadWrite(t *testing.T) {
	b := NewBank(16)

	v, err := b.Read(3)
	require.NoError(t, err)
	assert.Equal(t, int16(0), v, "new bank starts at zero")

	require.NoError(t, b.Write(3, -2))
	v, err = b.Read(3)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), v)
}

func TestBank_StoresBigEndian(t *testing.T) {
	b := NewBank(4)
	require.NoError(t, b.Write(1, 0x1234))
	require.NoError(t, b.Write(2, 1))

	raw, err := b.Bytes(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x12, 0x34, 0x00, 0x01, 0x00, 0x00}, raw)
}

func TestBank_OutOfRange(t *testing.T) {
	b := NewBank(10)

	_, err := b.Read(10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	var rerr *RangeError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 10, rerr.Index)
	assert.Equal(t, 10, rerr.Size)

	assert.ErrorIs(t, b.Write(-1, 1), ErrOutOfRange)

	_, err = b.Modify(11, func(v int16) int16 { return v + 1 })
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = b.ReadRange(8, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.EqualError(t, err, "registers [8..10] out of range (bank size 10)")

	// start+count would overflow int here.
	_, err = b.ReadRange(math.MaxInt-10, 16)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = b.Read(math.MaxInt)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, b.WriteRange(math.MaxInt, []uint16{1}), ErrOutOfRange)
	_, err = b.Bytes(math.MaxInt-1, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestBank_Modify(t *testing.T) {
	b := NewBank(8)
	require.NoError(t, b.Write(5, 41))

	ch, err := b.Modify(5, func(v int16) int16 { return v + 1 })
	require.NoError(t, err)
	assert.Equal(t, Change{Register: 5, Old: 41, New: 42}, ch)

	v, _ := b.Read(5)
	assert.Equal(t, int16(42), v)
}

func TestBank_ModifyIsAtomic(t *testing.T) {
	b := NewBank(2)
	const goroutines = 50
	const perGoroutine = 200

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := b.Modify(1, func(v int16) int16 { return v + 1 })
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, err := b.Read(1)
	require.NoError(t, err)
	assert.Equal(t, int16(goroutines*perGoroutine), v)
}

func TestBank_RangeAccess(t *testing.T) {
	b := NewBank(8)
	require.NoError(t, b.WriteRange(2, []uint16{1, 0xffff, 3}))

	vals, err := b.ReadRange(1, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 1, 0xffff, 3, 0}, vals)

	v, _ := b.Read(3)
	assert.Equal(t, int16(-1), v, "raw 0xffff reads back as -1")
}

func TestBank_WriteRangeIsAllOrNothing(t *testing.T) {
	b := NewBank(4)
	err := b.WriteRange(2, []uint16{7, 7, 7})
	require.ErrorIs(t, err, ErrOutOfRange)

	vals, err := b.ReadRange(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0, 0, 0}, vals)
}
