package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"codeberg.org/mutker/boostctl/internal/config"
	"codeberg.org/mutker/boostctl/internal/dashboard"
	"codeberg.org/mutker/boostctl/internal/device"
	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/metrics"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/pid"
	"codeberg.org/mutker/boostctl/internal/shell"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCommand   = "monitor"
	debugLogFileName = "boostctl-debug.log"
	noticeBuffer     = 8
	logFilePerm      = 0o600
)

const usage = `Usage: boostctl [flags] <command> [args]

Commands:
  monitor          poll and log CPU frequency and temperature (default)
  dashboard        interactive terminal dashboard
  apply <mode>     apply a mode: battery-saver, normal, pro, diablo
  revert           restore the normal settings
  status           print a single reading
  check-root       report whether privileged commands run as root
  modes            list modes and the commands they run
`

type app struct {
	cfg  *config.Config
	log  logger.Logger
	exec *shell.PrivilegedExecutor
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(os.Stdout)
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	command, args := defaultCommand, []string(nil)
	if len(cfg.Args) > 0 {
		command, args = cfg.Args[0], cfg.Args[1:]
	}

	closeLog := initLogger(cfg, command)
	defer closeLog()
	logger.Debug().Str("command", command).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a := &app{cfg: cfg, log: logger.Default()}

	switch command {
	case "monitor":
		a.exec = a.newExecutor()
		err = a.monitor(ctx)
	case "dashboard":
		notices := make(chan string, noticeBuffer)
		a.exec = a.newExecutor(shell.WithObserver(noticeObserver(notices)))
		err = a.dashboard(ctx, notices)
	case "apply":
		a.exec = a.newExecutor()
		err = a.apply(ctx, args)
	case "revert":
		a.exec = a.newExecutor()
		err = a.revert(ctx)
	case "status":
		a.exec = a.newExecutor()
		a.status(ctx)
	case "check-root":
		a.exec = a.newExecutor()
		err = a.checkRoot(ctx)
	case "modes":
		printModes(os.Stdout)
	default:
		printUsage(os.Stderr)
		err = errors.New().WithData(errors.ErrUnknownCommand, command)
	}

	if err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("boostctl failed")
		} else {
			logger.Error().Err(err).Msg("boostctl failed")
		}
		return 1
	}

	return 0
}

// initLogger keeps the dashboard's screen clean by sending logs to a file
// when debugging and discarding them otherwise.
func initLogger(cfg *config.Config, command string) func() {
	if command != "dashboard" {
		logger.Init(cfg.LogLevel, logger.IsService())
		return func() {}
	}

	if cfg.LogLevel != string(config.LogLevelDebug) {
		logger.InitWithWriter(io.Discard, cfg.LogLevel, true)
		return func() {}
	}

	path := filepath.Join(os.TempDir(), debugLogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
	if err != nil {
		logger.InitWithWriter(io.Discard, cfg.LogLevel, true)
		return func() {}
	}
	logger.InitWithWriter(f, cfg.LogLevel, false)

	return func() { f.Close() }
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) newExecutor(opts ...shell.Option) *shell.PrivilegedExecutor {
	return shell.New(append([]shell.Option{
		shell.WithHelper(a.cfg.Helper),
		shell.WithTimeout(a.cfg.Timeout()),
		shell.WithLogger(a.log.Named("shell")),
	}, opts...)...)
}

func (a *app) newPoller() *device.Poller {
	return device.NewPoller(a.exec,
		device.WithInterval(a.cfg.PollInterval()),
		device.WithCPU(a.cfg.CPU),
		device.WithThermalZone(a.cfg.ThermalZone),
		device.WithPollerLogger(a.log.Named("poller")),
	)
}

func (a *app) newApplier(collector metrics.Collector) dashboard.Applier {
	return &recordingApplier{
		applier: mode.NewApplier(a.exec,
			mode.WithStopOnFailure(a.cfg.StopOnFailure),
			mode.WithApplierLogger(a.log.Named("mode")),
		),
		collector: collector,
		log:       a.log,
	}
}

func (a *app) newCollector() (metrics.Collector, error) {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = a.cfg.Metrics
	cfg.DBPath = a.cfg.MetricsDB
	cfg.BatchSize = a.cfg.BatchSize
	cfg.BatchTimeout = time.Duration(a.cfg.BatchTimeout) * time.Second

	return metrics.NewService(cfg, a.log.Named("metrics"))
}

func (a *app) acquirePID() (func(), error) {
	f := pid.New("", pid.DefaultName)
	if err := f.Write(); err != nil {
		return nil, err
	}

	return func() {
		if err := f.Remove(); err != nil {
			a.log.Error().Err(err).Msg("failed to remove PID file")
		}
	}, nil
}

func (a *app) monitor(ctx context.Context) error {
	release, err := a.acquirePID()
	if err != nil {
		return err
	}
	defer release()

	collector, err := a.newCollector()
	if err != nil {
		return err
	}
	defer closeCollector(collector, a.log)

	poller := a.newPoller()
	readings, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	if !shell.CheckRoot(ctx, a.exec) {
		a.log.Warn().Str("helper", a.exec.Helper()).Msg("Root access not available, readings may be unavailable")
	}

	a.log.Info().
		Dur("interval", a.cfg.PollInterval()).
		Int("cpu", a.cfg.CPU).
		Int("thermal_zone", a.cfg.ThermalZone).
		Msg("Monitoring device state...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		for reading := range readings {
			logReading(a.log, reading)
			if err := collector.RecordReading(gctx, snapshotOf(reading)); err != nil {
				a.log.Error().Err(err).Msg("failed to record reading")
			}
		}
		return nil
	})

	err = g.Wait()
	a.log.Info().Msg("Exiting...")

	return err
}

func (a *app) dashboard(ctx context.Context, notices chan string) error {
	release, err := a.acquirePID()
	if err != nil {
		return err
	}
	defer release()

	collector, err := a.newCollector()
	if err != nil {
		return err
	}
	defer closeCollector(collector, a.log)

	hasRoot := shell.CheckRoot(ctx, a.exec)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := a.newPoller()
	readings, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	// The dashboard consumes its own subscription; a second one feeds the
	// recorder so a slow database never delays the screen.
	recorded, stopRecording := poller.Subscribe()
	defer stopRecording()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		for reading := range recorded {
			if err := collector.RecordReading(gctx, snapshotOf(reading)); err != nil {
				a.log.Error().Err(err).Msg("failed to record reading")
			}
		}
		return nil
	})

	model := dashboard.New(ctx, a.newApplier(collector), readings, notices, hasRoot)
	runErr := dashboard.Run(ctx, model)
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}

	return runErr
}

func (a *app) apply(ctx context.Context, args []string) error {
	errFactory := errors.New()

	if len(args) != 1 {
		return errFactory.WithData(errors.ErrInvalidArgument, "apply takes exactly one mode")
	}

	target, err := mode.Parse(args[0])
	if err != nil {
		return err
	}

	return a.applyMode(ctx, func(applier dashboard.Applier) mode.Report {
		return applier.Apply(ctx, target)
	})
}

func (a *app) revert(ctx context.Context) error {
	return a.applyMode(ctx, func(applier dashboard.Applier) mode.Report {
		return applier.Revert(ctx)
	})
}

func (a *app) applyMode(ctx context.Context, run func(dashboard.Applier) mode.Report) error {
	if !shell.CheckRoot(ctx, a.exec) {
		return errors.New().WithData(errors.ErrNoRoot, a.exec.Helper())
	}

	collector, err := a.newCollector()
	if err != nil {
		return err
	}
	defer closeCollector(collector, a.log)

	report := run(a.newApplier(collector))
	for _, step := range report.Steps {
		event := a.log.Info()
		switch {
		case step.Skipped:
			event = a.log.Warn()
		case !step.Result.Succeeded:
			event = a.log.ErrorWithCode(step.Result.Err)
		}
		event.Str("command", step.Command).
			Bool("skipped", step.Skipped).
			Bool("succeeded", step.Result.Succeeded).
			Msg("Mode step")
	}

	if err := report.Err(); err != nil {
		return errors.New().Wrap(errors.ErrApplyMode, err)
	}

	fmt.Printf("Mode: %s\n", report.Mode)

	return nil
}

func (a *app) status(ctx context.Context) {
	reading := a.newPoller().Poll(ctx)
	fmt.Printf("CPU: %s MHz\nTemp: %s°C\n", reading.FrequencyString(), reading.TemperatureString())
}

func (a *app) checkRoot(ctx context.Context) error {
	if !shell.CheckRoot(ctx, a.exec) {
		fmt.Println("root: no")
		return errors.New().WithData(errors.ErrNoRoot, a.exec.Helper())
	}

	fmt.Println("root: yes")

	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
	fmt.Fprintf(w, "\nFlags:\n%s", config.FlagUsages())
}

func printModes(w io.Writer) {
	for _, m := range mode.All() {
		fmt.Fprintf(w, "%s:\n", m)
		for _, command := range m.Commands() {
			fmt.Fprintf(w, "  %s\n", command)
		}
	}
}

func logReading(log logger.Logger, reading device.Reading) {
	log.Info().
		Str("cpu_mhz", reading.FrequencyString()).
		Str("temperature_c", reading.TemperatureString()).
		Msg("")
}

func snapshotOf(reading device.Reading) *metrics.ReadingSnapshot {
	return &metrics.ReadingSnapshot{
		Timestamp:       reading.Timestamp,
		CPUFrequencyMHz: reading.CPUFrequencyMHz,
		CPUFrequencyOK:  reading.CPUFrequencyOK,
		TemperatureC:    reading.TemperatureC,
		TemperatureOK:   reading.TemperatureOK,
	}
}

func closeCollector(collector metrics.Collector, log logger.Logger) {
	if err := collector.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close metrics")
	}
}

// noticeObserver turns failed commands into dashboard notices. Notices
// are dropped when the dashboard is not keeping up.
func noticeObserver(notices chan<- string) shell.Observer {
	return func(_ string, result shell.CommandResult) {
		if result.Succeeded {
			return
		}

		notice := "Exec error: " + result.Err.Error()
		if result.Kind == shell.KindInterruptedWait {
			notice = "Interrupted"
		}

		select {
		case notices <- notice:
		default:
		}
	}
}
