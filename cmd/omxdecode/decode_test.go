package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avomx/config"
)

func testRun(t *testing.T, cfg config.Config, input []byte) ([]byte, Stats) {
	ctx := withLogger(context.Background(), logger.LevelTrace)
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.bin")
	outputPath := filepath.Join(dir, "output.bin")
	require.NoError(t, os.WriteFile(inputPath, input, 0o644))

	require.NoError(t, cfg.Validate())
	stats, err := run(ctx, cfg, inputPath, outputPath)
	require.NoError(t, err)
	output, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	return output, stats
}

func TestRunSimulated(t *testing.T) {
	cfg := config.Default()
	cfg.Library = "sim:test"
	cfg.Component = "sim.upper"
	cfg.Simulated.Transform = "upper"
	cfg.Simulated.EmitSettingsChanged = true

	input := bytes.Repeat([]byte("hello world, "), 1000)
	output, stats := testRun(t, cfg, input)
	require.Equal(t, bytes.ToUpper(input), output)
	require.Equal(t, config.ByteSize(len(input)), stats.InputBytes)
	require.Equal(t, config.ByteSize(len(input)), stats.OutputBytes)
}

func TestRunSimulatedDeferredAndExactBuffers(t *testing.T) {
	cfg := config.Default()
	cfg.Library = "sim:test"
	cfg.Component = "sim.copy"
	cfg.DeferredSettingsChanged = true
	cfg.Simulated.EmitSettingsChanged = true
	cfg.Ports = []config.PortConfig{{Index: 0, BufferSize: 512}}

	// a multiple of the input buffer size: EOS arrives in an empty buffer
	input := bytes.Repeat([]byte{1, 2, 3, 4}, 512)
	output, _ := testRun(t, cfg, input)
	require.Equal(t, input, output)
}

func TestRunEmptyInput(t *testing.T) {
	cfg := config.Default()
	cfg.Library = "sim:test"
	cfg.Component = "sim.copy"
	output, stats := testRun(t, cfg, nil)
	require.Empty(t, output)
	require.Zero(t, stats.InputBytes)
}

func TestSetPortBufferSize(t *testing.T) {
	ports := setPortBufferSize(nil, 0, 1024)
	require.Equal(t, []config.PortConfig{{Index: 0, BufferSize: 1024}}, ports)
	ports = setPortBufferSize(ports, 0, 2048)
	require.Equal(t, []config.PortConfig{{Index: 0, BufferSize: 2048}}, ports)
}
