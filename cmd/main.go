package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testhost "github.com/ethereum-optimism/infra/op-testhost"
	"github.com/ethereum-optimism/infra/op-testhost/exitcodes"
	"github.com/ethereum-optimism/infra/op-testhost/flags"
	"github.com/ethereum-optimism/infra/op-testhost/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	if testhost.WantsUsage(os.Args[1:]) {
		testhost.PrintUsage(os.Stdout)
		os.Exit(exitcodes.UsageErr)
	}

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-testhost"
	app.Usage = "Go test binary runner with a design-time protocol"
	app.Description = "op-testhost discovers and runs the tests of compiled Go test binaries"
	app.ArgsUsage = "<project.yaml | project.toml | binary.test> [...]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.OnUsageError = func(c *cli.Context, err error, isSubcommand bool) error {
		return testhost.NewUsageError(err)
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(exitMessage(err), testhost.ExitCode(err)))
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, flags.ReorderArgs(os.Args, flags.Flags))
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitMessage is what is printed before exiting with err. A run with failures
// has already reported them.
func exitMessage(err error) string {
	if _, ok := testhost.FailureCount(err); ok {
		return ""
	}
	var usageErr *testhost.UsageError
	if errors.As(err, &usageErr) {
		return "error: " + usageErr.Error()
	}
	var valueErr *flags.ValueError
	if errors.As(err, &valueErr) {
		return "error: " + valueErr.Error()
	}
	var hostErr *testhost.HostError
	if errors.As(err, &hostErr) {
		return hostErr.Error()
	}
	return err.Error()
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := testhost.NewConfig(ctx, log)
	if err != nil {
		if errors.Is(err, testhost.ErrNoInputs) {
			testhost.PrintUsage(ctx.App.Writer)
		}
		return nil, err
	}

	cfg.Log.Debug("Config", "config", cfg)

	host, err := testhost.New(ctx.Context, cfg, Version, closeApp, testhost.Options{Out: ctx.App.Writer})
	if err != nil {
		return nil, fmt.Errorf("failed to create test host: %w", err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if !metricsCfg.Enabled {
		return host, nil
	}
	svc := service.New(log, nil)
	err = svc.Start(service.Config{
		Host:        metricsCfg.ListenAddr,
		MetricsPort: metricsCfg.ListenPort,
		HealthzPort: ctx.Int(flags.HealthzPort.Name),
	})
	if err != nil {
		return nil, testhost.NewHostError(err)
	}
	return &servedHost{TestHost: host, svc: svc}, nil
}

// servedHost is a test host running alongside its metrics and health servers.
type servedHost struct {
	*testhost.TestHost
	svc *service.Service
}

func (h *servedHost) Stop(ctx context.Context) error {
	err := h.TestHost.Stop(ctx)
	h.svc.Shutdown()
	return err
}
