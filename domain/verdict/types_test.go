package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	assert.Equal(t, DecisionRejectNull, Decide(0.01, 0.05))
	assert.Equal(t, DecisionFailToReject, Decide(0.05, 0.05), "boundary is not significant")
	assert.Equal(t, DecisionFailToReject, Decide(0.9, 0.05))
}

func TestNewCrossCheck(t *testing.T) {
	cc := NewCrossCheck(0.90, 0.91, 0.05)
	assert.InDelta(t, 0.01, cc.Delta, 1e-12)
	assert.True(t, cc.Agrees)

	cc = NewCrossCheck(0.40, 0.91, 0.05)
	assert.False(t, cc.Agrees)
}
