package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/policystack/internal/config"
	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/internal/residency"
	"github.com/IvanBrykalov/policystack/internal/workload"
	"github.com/IvanBrykalov/policystack/metastore"
	"github.com/IvanBrykalov/policystack/metrics/prom"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/stack"
	"github.com/IvanBrykalov/policystack/policy/stats"
)

var (
	runStack    string
	runDuration time.Duration
	runWorkers  int
	runRestore  bool
	runStoreDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a policy stack with a synthetic workload",
	Long: `Build the configured policy stack, optionally restore its mappings from the
metadata store, drive it with a Zipf workload and save the mappings and hints
when the run ends.

Examples:
  # Run the default stack for ten seconds
  policybench run

  # Run an era shim over 2Q and keep metadata on disk
  policybench run --stack era+2q --store-dir /var/lib/policybench

  # Resume from the previous run
  policybench run --store-dir /var/lib/policybench --restore

  # Environment overrides
  POLICYSTACK_WORKLOAD_WORKERS=16 policybench run`,
	RunE: runBench,
}

func init() {
	runCmd.Flags().StringVar(&runStack, "stack", "", "policy stack, e.g. era+stats+lru (overrides policy.stack)")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "run duration (overrides workload.duration)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker goroutines (overrides workload.workers)")
	runCmd.Flags().BoolVar(&runRestore, "restore", false, "restore mappings before running (overrides store.restore)")
	runCmd.Flags().StringVar(&runStoreDir, "store-dir", "", "metadata directory, empty keeps it in memory (overrides store.dir)")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := header(cfg)
	if err != nil {
		return err
	}
	p, err := stack.Build(stack.DefaultRegistry(), cfg.Policy.Stack,
		policy.CBlock(cfg.Policy.CacheBlocks), policy.OBlock(cfg.Policy.OriginBlocks), cfg.Policy.BlockSize)
	if err != nil {
		return errors.Wrapf(err, "build stack %q", cfg.Policy.Stack)
	}
	defer p.Destroy()

	if cfg.Policy.MigrationThreshold > 0 {
		v := strconv.FormatUint(uint64(cfg.Policy.MigrationThreshold), 10)
		if err := p.SetConfigValue(residency.KeyMigrationThreshold, v); err != nil {
			return errors.Wrap(err, "set migration threshold")
		}
	}

	store, err := metastore.OpenBadger(cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("metastore close error", "error", err)
		}
	}()

	if cfg.Store.Restore {
		n, err := metastore.Restore(store, h, p)
		switch {
		case errors.Is(err, metastore.ErrNotFound):
			logger.Info("no saved metadata, starting cold", "dir", cfg.Store.Dir)
		case err != nil:
			return errors.Wrapf(err, "restore after %d mappings", n)
		}
	}

	if cfg.Metrics.Enabled {
		shutdown, err := serveMetrics(cfg, p)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "stack=%s v%d.%d.%d hint=%dB cache=%d origin=%d workers=%d\n",
		h.Name, h.Version[0], h.Version[1], h.Version[2], h.HintSize,
		cfg.Policy.CacheBlocks, cfg.Policy.OriginBlocks, cfg.Workload.Workers)

	cp := metastore.NewCheckpointer(store, h, p)
	cpCtx, cpStop := context.WithCancel(ctx)
	cpDone := make(chan struct{})
	go func() {
		defer close(cpDone)
		if cfg.Store.CheckpointInterval > 0 {
			_ = cp.Run(cpCtx, cfg.Store.CheckpointInterval)
		}
	}()

	rep, runErr := workload.Run(ctx, p, workloadOptions(cfg))
	cpStop()
	<-cpDone
	printReport(out, rep, p)

	// save what we have even when the run stopped on an error
	n, err := cp.Checkpoint(context.Background())
	if err != nil {
		return errors.Wrap(err, "save metadata")
	}
	fmt.Fprintf(out, "saved %d mappings (%d checkpoints)\n", n, cp.Saves())
	return runErr
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("stack") {
		cfg.Policy.Stack = runStack
	}
	if f.Changed("duration") {
		cfg.Workload.Duration = runDuration
	}
	if f.Changed("workers") {
		cfg.Workload.Workers = runWorkers
	}
	if f.Changed("restore") {
		cfg.Store.Restore = runRestore
	}
	if f.Changed("store-dir") {
		cfg.Store.Dir = runStoreDir
	}
	return config.Validate(cfg)
}

func workloadOptions(cfg *config.Config) workload.Options {
	w := cfg.Workload
	return workload.Options{
		Workers:      w.Workers,
		Duration:     w.Duration,
		OriginBlocks: policy.OBlock(cfg.Policy.OriginBlocks),
		WriteRatio:   w.WriteRatio,
		ZipfS:        w.ZipfS,
		ZipfV:        w.ZipfV,
		EraInterval:  w.EraInterval,
		UnmapLag:     w.UnmapLag,
		TickInterval: w.TickInterval,
		Seed:         w.Seed,
	}
}

// serveMetrics attaches a Prometheus adapter to every stats layer and serves
// it on cfg.Metrics.Addr. The returned func stops the server.
func serveMetrics(cfg *config.Config, p policy.Policy) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := prom.New(reg, "policystack", "bench", prometheus.Labels{"stack": cfg.Policy.Stack})

	attached := 0
	for _, l := range stack.Layers(p) {
		if s, ok := l.(*stats.Shim); ok {
			s.SetMetrics(m)
			attached++
		}
	}
	if attached == 0 {
		logger.Warn("metrics enabled but the stack has no stats layer", "stack", cfg.Policy.Stack)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics: serving", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}, nil
}

func printReport(w io.Writer, rep workload.Report, p policy.Policy) {
	secs := rep.Elapsed.Seconds()
	if secs == 0 {
		secs = 1
	}
	fmt.Fprintf(w, "ops=%d (%.0f ops/s)  reads=%d  writes=%d  would_block=%d\n",
		rep.Ops, float64(rep.Ops)/secs, rep.Reads, rep.Writes, rep.WouldBlock)
	fmt.Fprintf(w, "hits=%d  misses=%d  migrations=%d (replacing %d)  hit-rate=%.2f%%\n",
		rep.Hits, rep.Misses, rep.Migrations, rep.Replaced, rep.HitRate())
	fmt.Fprintf(w, "writebacks=%d  eras=%d  invalidated=%d  resident=%d\n",
		rep.Writebacks, rep.Eras, rep.Invalidated, p.Residency())
	fmt.Fprint(w, "config: ")
	if err := p.EmitConfigValues(w); err != nil {
		logger.Warn("emit config values", "error", err)
	}
	fmt.Fprintln(w)
}
