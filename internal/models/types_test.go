package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusNormal.Valid())
	assert.True(t, StatusWarning.Valid())
	assert.True(t, StatusCritical.Valid())
	assert.False(t, Status("GREEN").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusProbability(t *testing.T) {
	tests := []struct {
		status Status
		want   float64
	}{
		{StatusCritical, 0.9},
		{StatusWarning, 0.7},
		{StatusNormal, 0.3},
		// unknown statuses rank like NORMAL rather than inflating
		{Status("bogus"), 0.3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Probability(), string(tt.status))
	}
}
