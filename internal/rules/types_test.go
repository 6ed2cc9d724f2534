package rules

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRule_Bounds(t *testing.T) {
	first, last := Single(7, 0, 1, 1).Bounds()
	assert.Equal(t, 7, first)
	assert.Equal(t, 7, last)

	first, last = Range(10, 12, 0, 1, 1).Bounds()
	assert.Equal(t, 10, first)
	assert.Equal(t, 12, last)
}

func TestRule_Delay(t *testing.T) {
	assert.Equal(t, 15*time.Second, Single(1, 0, 1, 15).Delay())
	assert.Equal(t, 9223372036*time.Second, Single(1, 0, 1, 9223372036).Delay())

	// Past the Duration range the delay saturates rather than going negative.
	assert.Equal(t, MaxDelay, Single(1, 0, 100, 10_000_000_000).Delay())
	assert.Equal(t, MaxDelay, Single(1, 0, 100, math.MaxInt64).Delay())
}

func TestRuleSet_TotalDelay(t *testing.T) {
	rs := RuleSet{Single(1, 0, 1, 5), Single(2, 0, 1, 10)}
	assert.Equal(t, 15*time.Second, rs.TotalDelay())

	huge := RuleSet{Single(1, 0, 1, 9_000_000_000), Single(2, 0, 1, 9_000_000_000)}
	assert.Equal(t, MaxDelay, huge.TotalDelay())
}

func TestRuleSet_CloneIsIndependent(t *testing.T) {
	rs := RuleSet{Range(1, 4, 0, 9, 1)}
	clone := rs.Clone()

	*rs[0].EndReg = 100
	rs[0].MaxValue = 1

	assert.Equal(t, int16(4), *clone[0].EndReg)
	assert.Equal(t, int16(9), clone[0].MaxValue)
	assert.Nil(t, RuleSet(nil).Clone())
}

func TestRule_String(t *testing.T) {
	assert.Equal(t, "reg[1] 0..3 every 5s", Single(1, 0, 3, 5).String())
	assert.Equal(t, "range[10..12] mod 3 every 2s", Range(10, 12, 5, 2, 2).String())
}
