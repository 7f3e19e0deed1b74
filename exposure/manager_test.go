package exposure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	committed float64
}

func (f *fakeSource) CommittedEnergyMWh() float64 {
	return f.committed
}

func TestHaltAndResume(t *testing.T) {
	source := &fakeSource{committed: 40}
	m := NewManager(source, 100)

	m.CheckAndUpdate()
	assert.False(t, m.IsTradingHalted())

	source.committed = 100
	m.CheckAndUpdate()
	assert.True(t, m.IsTradingHalted(), "halts at the cap, not only above it")

	source.committed = 99.9
	m.CheckAndUpdate()
	assert.False(t, m.IsTradingHalted(), "resumes once committed energy falls below the cap")
}

func TestDisabledLimit(t *testing.T) {
	source := &fakeSource{committed: 1e6}
	m := NewManager(source, 0)

	m.CheckAndUpdate()
	assert.False(t, m.IsTradingHalted(), "a non-positive cap disables the check")
}
