package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/roach88/dyneval/internal/compiler"
	"github.com/roach88/dyneval/internal/engine"
	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/ir"
	"github.com/roach88/dyneval/internal/statedb"
	"github.com/roach88/dyneval/internal/store"
	"github.com/roach88/dyneval/internal/telemetry"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	KeepDynamic bool
	Database    string
	StateDB     string
	Set         []string
	Sensors     []string
	Duration    time.Duration
	Tick        time.Duration
	Locale      string
	MetricsAddr string
}

// EmissionOutput is one printed emission.
type EmissionOutput struct {
	Index   int             `json:"index"`
	Invalid bool            `json:"invalid"`
	Record  json.RawMessage `json:"record"`
}

// EvaluateResult is the JSON payload of the evaluate command.
type EvaluateResult struct {
	Record    string           `json:"record"`
	Emissions []EmissionOutput `json:"emissions"`
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <records-dir> <record-name>",
		Short: "Evaluate a record and print its emissions",
		Long: `Subscribe to the evaluated form of a record and print every emission.

State comes from --state (a snapshot written by "dyneval state") and --set
overrides. Platform sensors are fed from --sensor readings. Time
expressions follow the wall clock.

Without --duration the first emission is printed and the command exits.
With --duration it keeps printing until the duration ends or it is
interrupted.

Examples:
  dyneval evaluate ./records progress --set steps=750 --set name=Ana
  dyneval evaluate ./records heart --sensor heart_rate_bpm=72
  dyneval evaluate ./records clock --duration 2m --db ./trace.db
  dyneval evaluate ./records progress --state ./state.db --metrics-addr :9090 --duration 1h`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.KeepDynamic, "keep-dynamic", false, "keep expressions next to their evaluated values")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite trace database to record emissions in")
	cmd.Flags().StringVar(&opts.StateDB, "state", "", "state snapshot to seed the state store from")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "state assignment key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sensors, "sensor", nil, "sensor reading key=value (repeatable)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "keep collecting for this long (0 prints the first emission)")
	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Second, "time gateway tick interval")
	cmd.Flags().StringVar(&opts.Locale, "locale", "en", "BCP 47 locale for number formatting")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, recordsDir, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := loggerFor(cmd, opts.RootOptions)

	loaded, loadErr := LoadRecords(recordsDir)
	if loadErr != nil {
		if err := formatter.Error(loadErr.Code, loadErr.Error(), nil); err != nil {
			return err
		}
		return WrapExitError(ExitCommandError, "failed to load records", loadErr)
	}
	rec, ok := loaded.Find(name)
	if !ok {
		msg := fmt.Sprintf("record %q not declared in %s", name, recordsDir)
		if err := formatter.Error(ErrCodeUnknownRecord, msg, loaded.Names()); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}
	if errs := compiler.Validate(rec); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	tag, err := language.Parse(opts.Locale)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --locale", err)
	}
	state, err := buildState(opts)
	if err != nil {
		return err
	}
	sensors, err := buildSensors(opts.Sensors)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *telemetry.Metrics
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		addr, shutdown, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer shutdown()
		formatter.VerboseLog("Serving metrics on http://%s/metrics", addr)
	}

	ev := engine.New(
		engine.WithStateStore(state),
		engine.WithTimeGateway(expr.NewTickerTimeGateway(opts.Tick)),
		engine.WithSensorGateway(sensors),
		engine.WithKeepDynamicValues(opts.KeepDynamic),
		engine.WithLocale(tag),
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)
	defer ev.Close()

	stream := ev.Evaluate(rec)
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		last, err := st.LastSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace sequence", err)
		}
		formatter.VerboseLog("Tracing to %s from seq %d", opts.Database, last)
		stream = engine.NewTracer(st, nil, engine.NewClockAt(last)).Trace(name, rec, stream)
	}

	result := EvaluateResult{Record: name, Emissions: []EmissionOutput{}}
	show := func(r *ir.Record) {
		out, err := emissionOutput(len(result.Emissions)+1, r)
		if err != nil {
			logger.Error("render emission", "error", err)
			return
		}
		result.Emissions = append(result.Emissions, out)
		if !formatter.IsJSON() {
			fmt.Fprintf(formatter.Writer, "[%d] %s\n", out.Index, r)
		}
	}

	if opts.Duration <= 0 {
		recs, err := engine.Take(ctx, stream, 1)
		if err != nil {
			return WrapExitError(ExitCommandError, "evaluation failed", err)
		}
		for _, r := range recs {
			show(r)
		}
	} else {
		runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
		defer cancel()
		err := stream.Collect(runCtx, show)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitCommandError, "evaluation failed", err)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	return nil
}

func emissionOutput(index int, r *ir.Record) (EmissionOutput, error) {
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return EmissionOutput{}, err
	}
	return EmissionOutput{Index: index, Invalid: ir.IsInvalid(r), Record: data}, nil
}

// buildState seeds a state store from the snapshot file and --set flags.
// The snapshot is closed again before evaluation so other commands can
// open it.
func buildState(opts *EvaluateOptions) (*expr.StateStore, error) {
	state := expr.NewStateStore(nil)
	if opts.StateDB != "" {
		db, err := statedb.Open(opts.StateDB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open state snapshot", err)
		}
		err = db.Load(state)
		db.Close()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load state snapshot", err)
		}
	}
	overrides := make(map[string]expr.Value, len(opts.Set))
	for _, a := range opts.Set {
		key, v, err := parseAssignment(a)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --set", err)
		}
		overrides[key] = v
	}
	state.SetAll(overrides)
	return state, nil
}

func buildSensors(readings []string) (*expr.FakeSensorGateway, error) {
	sensors := expr.NewFakeSensorGateway()
	for _, a := range readings {
		key, raw, found := strings.Cut(a, "=")
		if !found || key == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --sensor %q: want key=value", a))
		}
		if !slices.Contains(ir.PlatformKeys, key) {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("unknown sensor %q: must be one of %v", key, ir.PlatformKeys))
		}
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --sensor %q", a), err)
		}
		sensors.Emit(key, float32(f))
	}
	return sensors, nil
}

// parseAssignment splits key=value. Values that parse as numbers become
// floats, anything else a string.
func parseAssignment(s string) (string, expr.Value, error) {
	key, raw, found := strings.Cut(s, "=")
	if !found || key == "" {
		return "", nil, fmt.Errorf("%q: want key=value", s)
	}
	if f, err := strconv.ParseFloat(raw, 32); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", nil, fmt.Errorf("%q: number must be finite", s)
		}
		return key, expr.Float(f), nil
	}
	return key, expr.String(raw), nil
}

// serveMetrics exposes reg on addr until the returned func is called. It
// returns the bound address, which differs from addr for port 0.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
