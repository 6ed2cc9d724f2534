// Package registers holds the simulated holding-register bank.
//
// Registers are stored the way they travel on the wire: two bytes per
// register, most significant byte first. Every access takes the bank
// mutex, so a read-modify-write issued by the simulation engine is atomic
// with respect to reads and writes issued by Modbus clients.
package registers

import (
	"errors"
	"fmt"
	"sync"
)

// MaxRegisters is the size of the Modbus holding-register address space.
const MaxRegisters = 65536

// ErrOutOfRange is matched (errors.Is) by every *RangeError.
var ErrOutOfRange = errors.New("register index out of range")

// RangeError reports an access outside the bank.
type RangeError struct {
	Index int
	Count int // number of registers requested starting at Index
	Size  int
}

func (e *RangeError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("registers [%d..%d] out of range (bank size %d)", e.Index, e.Index+e.Count-1, e.Size)
	}
	return fmt.Sprintf("register %d out of range (bank size %d)", e.Index, e.Size)
}

// Is makes errors.Is(err, ErrOutOfRange) true.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Change records one read-modify-write.
type Change struct {
	Register int   `json:"register"`
	Old      int16 `json:"old"`
	New      int16 `json:"new"`
}

// Bank is a fixed-size, mutex-guarded register array.
// The zero value is not usable; call NewBank.
type Bank struct {
	mu  sync.Mutex
	buf []byte
}

// NewBank returns a bank of size registers, all zero.
// size is clamped to [1, MaxRegisters].
func NewBank(size int) *Bank {
	if size <= 0 {
		size = 1
	}
	if size > MaxRegisters {
		size = MaxRegisters
	}
	return &Bank{buf: make([]byte, 2*size)}
}

// Len returns the number of registers in the bank.
func (b *Bank) Len() int {
	return len(b.buf) / 2
}

// Read returns the value of register i.
func (b *Bank) Read(i int) (int16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(i, 1); err != nil {
		return 0, err
	}
	return int16(getU16(b.buf, i)), nil
}

// Write sets register i to v.
func (b *Bank) Write(i int, v int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(i, 1); err != nil {
		return err
	}
	putU16(b.buf, i, uint16(v))
	return nil
}

// Modify applies fn to register i while holding the bank lock and stores
// the result. fn must not call back into the bank.
func (b *Bank) Modify(i int, fn func(old int16) int16) (Change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(i, 1); err != nil {
		return Change{}, err
	}
	old := int16(getU16(b.buf, i))
	v := fn(old)
	putU16(b.buf, i, uint16(v))
	return Change{Register: i, Old: old, New: v}, nil
}

// ReadRange returns count registers starting at start as raw 16-bit words.
func (b *Bank) ReadRange(start, count int) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(start, count); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for n := range out {
		out[n] = getU16(b.buf, start+n)
	}
	return out, nil
}

// WriteRange stores vals starting at register start. Either every value is
// written or, on a range error, none is.
func (b *Bank) WriteRange(start int, vals []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(start, len(vals)); err != nil {
		return err
	}
	for n, v := range vals {
		putU16(b.buf, start+n, v)
	}
	return nil
}

// Bytes returns a copy of the raw big-endian storage for registers
// [start, start+count).
func (b *Bank) Bytes(start, count int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(start, count); err != nil {
		return nil, err
	}
	out := make([]byte, 2*count)
	copy(out, b.buf[2*start:2*(start+count)])
	return out, nil
}

func (b *Bank) check(start, count int) error {
	size := len(b.buf) / 2
	// count > size-start rather than start+count > size: the sum overflows
	// for start near math.MaxInt.
	if start < 0 || count < 0 || start >= size || count > size-start {
		return &RangeError{Index: start, Count: count, Size: size}
	}
	return nil
}

// getU16 decodes register i, big endian.
func getU16(buf []byte, i int) uint16 {
	return uint16(buf[2*i])<<8 | uint16(buf[2*i+1])
}

// putU16 encodes register i, big endian.
func putU16(buf []byte, i int, w uint16) {
	buf[2*i] = byte(w >> 8)
	buf[2*i+1] = byte(w)
}
