package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.11.0"

	"github.com/emberchain/ember-node/logs"
	"github.com/emberchain/ember-node/nodebuilder"
	"github.com/emberchain/ember-node/nodebuilder/node"
)

const (
	logLevelFlag       = "log.level"
	logLevelModuleFlag = "log.level.module"
	pprofFlag          = "pprof"
	tracingFlag        = "tracing"
	metricsFlag        = "metrics"

	pprofAddr          = "0.0.0.0:6000"
	defaultOTLPAddress = "localhost:4318"
)

// MiscFlags gives the logging, profiling and telemetry flags.
func MiscFlags() *flag.FlagSet {
	flags := &flag.FlagSet{}

	flags.String(logLevelFlag, "INFO", "DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL and their lower-case forms")
	flags.StringSlice(logLevelModuleFlag, nil, "<module>:<level>, e.g. sync/peers:debug")
	flags.Bool(pprofFlag, false, "Exposes pprof profiles on "+pprofAddr)

	for _, name := range []string{tracingFlag, metricsFlag} {
		flags.Bool(name, false, fmt.Sprintf("Exports OTLP %s over HTTP", name))
		flags.String(name+".endpoint", defaultOTLPAddress,
			fmt.Sprintf("OTLP HTTP endpoint for %s. Depends on '--%s'", name, name))
		flags.Bool(name+".tls", true, fmt.Sprintf("Use TLS when exporting %s", name))
	}
	return flags
}

// ParseMiscFlags applies the log levels, starts pprof and tracing, and adds the metrics option
// to the node options in ctx.
func ParseMiscFlags(ctx context.Context, cmd *cobra.Command) (context.Context, error) {
	if err := parseLogLevels(cmd); err != nil {
		return ctx, err
	}

	if on, _ := cmd.Flags().GetBool(pprofFlag); on {
		go servePprof()
	}

	if endpoint, insecure, on := otlpTarget(cmd, tracingFlag); on {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
			otlptracehttp.WithEndpoint(endpoint),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(cmd.Context(), opts...)
		if err != nil {
			return ctx, fmt.Errorf("cmd: creating trace exporter: %w", err)
		}
		otel.SetTracerProvider(tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String("ember-node"),
				semconv.ServiceVersionKey.String(node.GetBuildInfo().GetSemanticVersion()),
			)),
		))
	}

	if endpoint, insecure, on := otlpTarget(cmd, metricsFlag); on {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
			otlpmetrichttp.WithEndpoint(endpoint),
		}
		if insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		ctx = WithNodeOptions(ctx, nodebuilder.WithMetrics(opts))
	}
	return ctx, nil
}

func parseLogLevels(cmd *cobra.Command) error {
	if lvl := cmd.Flag(logLevelFlag).Value.String(); lvl != "" {
		level, err := logging.LevelFromString(lvl)
		if err != nil {
			return fmt.Errorf("cmd: while parsing '%s': %w", logLevelFlag, err)
		}
		logs.SetAllLoggers(level)
	}

	modules, err := cmd.Flags().GetStringSlice(logLevelModuleFlag)
	if err != nil {
		return err
	}
	for _, m := range modules {
		module, level, ok := strings.Cut(m, ":")
		if !ok {
			return fmt.Errorf("cmd: %s arg must be in form <module>:<level>, e.g. sync/peers:debug", logLevelModuleFlag)
		}
		if err := logging.SetLogLevel(module, level); err != nil {
			return err
		}
	}
	return nil
}

// otlpTarget reads the endpoint and TLS flags of the telemetry kind and reports whether it is on.
func otlpTarget(cmd *cobra.Command, kind string) (endpoint string, insecure bool, on bool) {
	on, _ = cmd.Flags().GetBool(kind)
	if !on {
		return "", false, false
	}
	endpoint = cmd.Flag(kind + ".endpoint").Value.String()
	tls, _ := cmd.Flags().GetBool(kind + ".tls")
	return endpoint, !tls, true
}

func servePprof() {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	srv := http.Server{
		Addr:         pprofAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Infow("serving pprof", "addr", pprofAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("pprof server stopped", "err", err)
	}
}
