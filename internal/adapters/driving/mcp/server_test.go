package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil evaluator returns error", func(t *testing.T) {
		ports := &Ports{Builds: &mockBuildService{}}
		server, err := NewServer(ports)
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingEvaluator)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		ports := &Ports{
			Evaluator: &mockEvaluator{},
			Builds:    &mockBuildService{},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	t.Run("empty ports returns evaluator error", func(t *testing.T) {
		ports := &Ports{}
		assert.ErrorIs(t, ports.Validate(), ErrMissingEvaluator)
	})

	t.Run("missing build service", func(t *testing.T) {
		ports := &Ports{Evaluator: &mockEvaluator{}}
		assert.ErrorIs(t, ports.Validate(), ErrMissingBuildService)
	})

	t.Run("all ports is valid", func(t *testing.T) {
		ports := &Ports{
			Evaluator: &mockEvaluator{},
			Builds:    &mockBuildService{},
		}
		assert.NoError(t, ports.Validate())
	})
}
