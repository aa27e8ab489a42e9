package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.True(t, StatusAbsent.IsDeductible())
	assert.True(t, StatusUnpaidLeave.IsDeductible())
	assert.False(t, StatusPaidLeave.IsDeductible())
	assert.False(t, StatusPresent.IsDeductible())

	assert.True(t, StatusPaidLeave.IsValid())
	assert.False(t, Status("sick").IsValid())
}
