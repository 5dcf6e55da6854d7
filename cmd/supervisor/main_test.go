package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/supervisor"
)

func TestFleetSpecsStaggerLaunches(t *testing.T) {
	specs := fleetSpecs("/opt/duckswarm/bin")
	require.Len(t, specs, len(fleet))

	assert.Equal(t, "hub", specs[0].Name)
	assert.Equal(t, time.Duration(0), specs[0].Delay)
	for i, spec := range specs {
		assert.Equal(t, time.Duration(i)*launchStagger, spec.Delay, spec.Name)
		assert.Equal(t, filepath.Join("/opt/duckswarm/bin", spec.Name), spec.Path)
	}
}

func TestSingleAgentSelectionByPath(t *testing.T) {
	specs := fleetSpecs("./bin")
	single, ok := supervisor.FilterByPath(specs, filepath.Join("bin", "gas-agent"))
	require.True(t, ok)
	require.Len(t, single, 1)
	assert.Equal(t, "gas-agent", single[0].Name)
	assert.Equal(t, time.Duration(0), single[0].Delay)
}

func TestUnknownPathRejected(t *testing.T) {
	specs := fleetSpecs("./bin")
	_, ok := supervisor.FilterByPath(specs, "./bin/quant-agent")
	assert.False(t, ok)
}
