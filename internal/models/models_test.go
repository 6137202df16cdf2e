package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name         string
		saved        float64
		target       float64
		wantProgress float64
		wantOK       bool
	}{
		{name: "regular", saved: 2000, target: 10000, wantProgress: 20, wantOK: true},
		{name: "rounded to two decimals", saved: 1, target: 3, wantProgress: 33.33, wantOK: true},
		{name: "over the target", saved: 150, target: 100, wantProgress: 150, wantOK: true},
		{name: "nothing saved", saved: 0, target: 100, wantProgress: 0, wantOK: true},
		{name: "zero target", saved: 10, target: 0, wantProgress: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress, ok := Progress(tt.saved, tt.target)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantProgress, progress, 1e-9)
		})
	}
}

func TestGoalView(t *testing.T) {
	view := Goal{ID: "1", Name: "Emergency Fund", Target: 10000, Saved: 2000}.View()

	assert.Equal(t, "Emergency Fund", view.Name)
	assert.True(t, view.HasProgress)
	assert.InDelta(t, 20.0, view.Progress, 1e-9)
	assert.InDelta(t, 8000.0, view.Remaining, 1e-9)

	zero := Goal{ID: "2", Name: "Someday", Target: 0, Saved: 5}.View()
	assert.False(t, zero.HasProgress)
}
