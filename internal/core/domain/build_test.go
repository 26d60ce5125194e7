package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuild_Transition tests the allowed lifecycle paths
func TestBuild_Transition(t *testing.T) {
	tests := []struct {
		name    string
		path    []BuildStatus
		wantErr bool
	}{
		{"promote", []BuildStatus{BuildPassed, BuildPromoted}, false},
		{"fail while staging", []BuildStatus{BuildFailed}, false},
		{"fail after gates", []BuildStatus{BuildPassed, BuildFailed}, false},
		{"skip gates", []BuildStatus{BuildPromoted}, true},
		{"revive failed", []BuildStatus{BuildFailed, BuildPassed}, true},
		{"demote promoted", []BuildStatus{BuildPassed, BuildPromoted, BuildFailed}, true},
		{"back to staging", []BuildStatus{BuildStaging}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuild("run", "evid", "/ws", time.Now())
			var err error
			for _, next := range tt.path {
				if err = b.Transition(next, ""); err != nil {
					break
				}
			}
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestBuild_TransitionKeepsReason tests that the failure reason is retained
func TestBuild_TransitionKeepsReason(t *testing.T) {
	b := NewBuild("run", "evid", "/ws", time.Now())
	require.NoError(t, b.Transition(BuildFailed, "count_equality"))

	assert.Equal(t, BuildFailed, b.Status)
	assert.Equal(t, "count_equality", b.Reason)
	assert.True(t, b.Status.IsTerminal())
}

// TestResourceProfile_Missing tests profile completeness
func TestResourceProfile_Missing(t *testing.T) {
	assert.Empty(t, DefaultResourceProfile().Missing())
	assert.Equal(t, []string{"batch_size", "device", "workers"}, ResourceProfile{}.Missing())
}

// TestManifest_Append tests append-only addenda
func TestManifest_Append(t *testing.T) {
	m := &Manifest{}
	m.Append(AuditNote{Phase: "staged", Message: "gates passed"})
	m.Append(AuditNote{Phase: "promotion", Message: "promoted"})

	require.Len(t, m.Addenda, 2)
	assert.Equal(t, "staged", m.Addenda[0].Phase)
}
