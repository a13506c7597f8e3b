// decode.go runs a file through one engine component.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avomx/config"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/engine/omxil"
	"github.com/xaionaro-go/avomx/engine/simulated"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/avomx/registry"
	"github.com/xaionaro-go/avomx/session"
	"github.com/xaionaro-go/avomx/types"
	"github.com/xaionaro-go/observability"
)

type Stats struct {
	InputBytes  config.ByteSize
	OutputBytes config.ByteSize
}

func newLoader(cfg config.Config) registry.Loader {
	simCfg := simulated.DefaultConfig()
	simCfg.EmitSettingsChanged = cfg.Simulated.EmitSettingsChanged
	switch cfg.Simulated.Transform {
	case "upper":
		simCfg.Transform = bytes.ToUpper
	case "reverse":
		simCfg.Transform = func(in []byte) []byte {
			out := bytes.Clone(in)
			slices.Reverse(out)
			return out
		}
	}
	return &registry.PrefixLoader{
		Default: registry.LoaderFunc(omxil.Loader),
		Prefixed: map[string]registry.Loader{
			"sim": registry.LoaderFunc(simulated.Loader(simCfg)),
		},
	}
}

func logPortDefinition(ctx context.Context, s *session.Session, portIndex uint32) {
	def, err := s.Handle().GetPortDefinition(ctx, portIndex)
	if err != nil {
		logger.Errorf(ctx, "unable to get the definition of port #%d: %v", portIndex, err)
		return
	}
	logger.Infof(ctx, "the settings of port #%d changed: %s", portIndex, spew.Sdump(def))
}

func setupPort(
	ctx context.Context,
	s *session.Session,
	cfg config.Config,
	index uint32,
) (*session.Port, error) {
	portCfg, ok := cfg.Port(index)
	if !ok {
		return s.SetupPortFromEngine(ctx, index, nil)
	}
	return s.SetupPortFromEngine(ctx, index, func(def *engine.PortDefinition) {
		portCfg.Apply(def)
	})
}

func run(
	ctx context.Context,
	cfg config.Config,
	inputPath string,
	outputPath string,
) (_ret Stats, _err error) {
	logger.Debugf(ctx, "run(ctx, '%s', '%s')", inputPath, outputPath)
	defer func() { logger.Debugf(ctx, "/run(ctx, '%s', '%s'): %v", inputPath, outputPath, _err) }()

	input, err := os.Open(inputPath)
	if err != nil {
		return Stats{}, fmt.Errorf("unable to open the input: %w", err)
	}
	defer input.Close()
	output, err := os.Create(outputPath)
	if err != nil {
		return Stats{}, fmt.Errorf("unable to create the output: %w", err)
	}
	defer output.Close()

	reg := registry.New(newLoader(cfg))
	defer func() {
		if err := reg.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the registry: %v", err)
		}
	}()

	var opts []session.Option
	if cfg.DeferredSettingsChanged {
		opts = append(opts, session.WithDeferredSettingsChanged())
	} else {
		opts = append(opts, session.WithSettingsChangedHook(logPortDefinition))
	}
	s, err := session.New(ctx, reg, cfg.Library, cfg.Component, opts...)
	if err != nil {
		return Stats{}, err
	}
	defer closeLogged(ctx, s)

	inPort, err := setupPort(ctx, s, cfg, cfg.InputPort)
	if err != nil {
		return Stats{}, err
	}
	outPort, err := setupPort(ctx, s, cfg, cfg.OutputPort)
	if err != nil {
		return Stats{}, err
	}

	if err := s.Prepare(ctx); err != nil {
		return Stats{}, fmt.Errorf("unable to prepare: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		return Stats{}, fmt.Errorf("unable to start: %w", err)
	}

	var stats Stats
	writeErrCh := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		n, err := writeOutput(ctx, s, outPort, cfg.DeferredSettingsChanged, output)
		stats.OutputBytes = config.ByteSize(n)
		writeErrCh <- err
	})

	n, feedErr := feedInput(ctx, inPort, input)
	stats.InputBytes = config.ByteSize(n)
	if feedErr != nil {
		// release the writer
		s.FlushStart(ctx)
	}
	writeErr := <-writeErrCh

	var result []error
	if feedErr != nil {
		result = append(result, fmt.Errorf("unable to feed the input: %w", feedErr))
	}
	if writeErr != nil {
		result = append(result, fmt.Errorf("unable to write the output: %w", writeErr))
	}
	if err := s.UnrecoverableError(ctx); err != nil {
		result = append(result, err)
	}
	if len(result) == 0 {
		if err := s.WaitForDone(ctx); err != nil {
			result = append(result, err)
		}
	}
	if err := s.Finish(ctx); err != nil {
		result = append(result, fmt.Errorf("unable to finish: %w", err))
	}
	return stats, errors.Join(result...)
}

func feedInput(
	ctx context.Context,
	port *session.Port,
	r io.Reader,
) (uint64, error) {
	var total uint64
	for {
		buf, err := port.Request(ctx)
		if err != nil {
			return total, err
		}
		n, err := io.ReadFull(r, buf.Data)
		buf.Offset = 0
		buf.FilledLen = uint32(n)
		buf.Flags = 0
		total += uint64(n)
		eos := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eos = true
			buf.Flags = engine.BufferFlagEOS
		default:
			return total, err
		}
		if err := port.ReleaseBuffer(ctx, buf); err != nil {
			return total, err
		}
		if eos {
			logger.Debugf(ctx, "fed %d bytes", total)
			return total, nil
		}
	}
}

func writeOutput(
	ctx context.Context,
	s *session.Session,
	port *session.Port,
	deferredSettingsChanged bool,
	w io.Writer,
) (uint64, error) {
	var total uint64
	for {
		if deferredSettingsChanged && s.ConsumeSettingsChanged() {
			logPortDefinition(ctx, s, port.Index())
		}
		buf, err := port.Request(ctx)
		if err != nil {
			return total, err
		}
		n, err := w.Write(buf.Payload())
		total += uint64(n)
		if err != nil {
			return total, err
		}
		if buf.Flags.Has(engine.BufferFlagEOS) {
			logger.Debugf(ctx, "wrote %d bytes", total)
			return total, nil
		}
		buf.FilledLen = 0
		buf.Offset = 0
		if err := port.ReleaseBuffer(ctx, buf); err != nil {
			return total, err
		}
	}
}

func closeLogged(ctx context.Context, c types.Closer) {
	if err := c.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close %v: %v", c, err)
	}
}
