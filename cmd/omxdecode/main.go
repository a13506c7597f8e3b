package main

import (
	"context"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avomx/config"
	"github.com/xaionaro-go/observability"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <input-file> <output-file>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	library := pflag.String("library", "", "the engine library (a path, or 'sim:<name>' for the built-in simulated engine)")
	component := pflag.String("component", "", "the component name, e.g. OMX.st.audio_decoder.mp3.mad")
	inputPort := pflag.Uint32("input-port", 0, "the index of the input port")
	outputPort := pflag.Uint32("output-port", 1, "the index of the output port")
	deferred := pflag.Bool("deferred-settings-changed", false, "handle output port changes on the output thread instead of the engine's thread")
	var inputBufferSize config.ByteSize
	pflag.Var(&inputBufferSize, "input-buffer-size", "override the buffer size of the input port (e.g. 64KiB)")
	pflag.Parse()
	if len(pflag.Args()) != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	ctx := withLogger(context.Background(), loggerLevel)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	defer belt.Flush(ctx)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			logger.Fatal(ctx, err)
		}
	}
	flags := pflag.CommandLine
	if flags.Changed("library") {
		cfg.Library = *library
	}
	if flags.Changed("component") {
		cfg.Component = *component
	}
	if flags.Changed("input-port") {
		cfg.InputPort = *inputPort
	}
	if flags.Changed("output-port") {
		cfg.OutputPort = *outputPort
	}
	if flags.Changed("deferred-settings-changed") {
		cfg.DeferredSettingsChanged = *deferred
	}
	if inputBufferSize != 0 {
		cfg.Ports = setPortBufferSize(cfg.Ports, cfg.InputPort, inputBufferSize)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(ctx, err)
	}
	logger.Debugf(ctx, "config: %s", spew.Sdump(cfg))

	stats, err := run(ctx, cfg, pflag.Arg(0), pflag.Arg(1))
	if err != nil {
		logger.Fatal(ctx, err)
	}
	fmt.Printf("consumed %s, produced %s\n", stats.InputBytes, stats.OutputBytes)
}

func setPortBufferSize(
	ports []config.PortConfig,
	index uint32,
	size config.ByteSize,
) []config.PortConfig {
	for idx := range ports {
		if ports[idx].Index == index {
			ports[idx].BufferSize = size
			return ports
		}
	}
	return append(ports, config.PortConfig{Index: index, BufferSize: size})
}

func withLogger(ctx context.Context, loggerLevel logger.Level) context.Context {
	runtime.DefaultCallerPCFilter = observability.CallerPCFilter(runtime.DefaultCallerPCFilter)
	l := logrus.Default().WithLevel(loggerLevel)
	ctx = logger.CtxWithLogger(ctx, l)
	logger.Default = func() logger.Logger {
		return l
	}
	return ctx
}
