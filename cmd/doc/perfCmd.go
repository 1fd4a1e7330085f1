package doc

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dVer/cmd/util"
	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for versioned collections",
		Long:    "Runs create, get, update, history and contended update workloads against a dVer server and reports latencies and throughput",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfOps        = 100
	perfValueSize  = 64
	perfSkip       = make([]string, 0)
)

// perfResult is the outcome of one workload
type perfResult struct {
	Name      string
	Ops       int64
	Errors    int64
	Conflicts int64
	MeanUs    float64
	P50Us     float64
	P99Us     float64
	OpsPerSec float64
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Workloads to skip (comma separated - e.g. history,contended)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent writers"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("Operations per writer and workload"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 64, util.WrapString("Size of the payload field of the test records (in bytes)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumThreads = max(1, viper.GetInt("threads"))
	perfOps = max(1, viper.GetInt("ops"))
	perfValueSize = max(0, viper.GetInt("value-size"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for versioned collections")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Collection: %s\n", collection.Collection())
	fmt.Printf("Threads: %d, ops per thread: %d\n", perfNumThreads, perfOps)
	fmt.Println()

	registry := metrics.NewRegistry()
	value := strings.Repeat("x", perfValueSize)

	// one record per writer, created by the create workload or lazily by the first one that needs it
	records := make([]*versioning.LiveRecord, perfNumThreads)
	ensureRecords := func() error {
		for i := range records {
			if records[i] != nil {
				continue
			}
			rec := &versioning.LiveRecord{Payload: map[string]any{"value": value, "writer": i}}
			if err := collection.Create(ctx, rec); err != nil {
				return fmt.Errorf("failed to create test record: %w", err)
			}
			records[i] = rec
		}
		return nil
	}

	var results []perfResult

	if !shouldSkip("create") {
		results = append(results, runWorkload(ctx, registry, "create", func(ctx context.Context, writer, _ int) error {
			rec := &versioning.LiveRecord{Payload: map[string]any{"value": value, "writer": writer}}
			if err := collection.Create(ctx, rec); err != nil {
				return err
			}
			records[writer] = rec
			return nil
		}))
	}

	if err := ensureRecords(); err != nil {
		return err
	}

	if !shouldSkip("get") {
		results = append(results, runWorkload(ctx, registry, "get", func(ctx context.Context, writer, _ int) error {
			_, err := collection.Get(ctx, records[writer].ID)
			return err
		}))
	}

	if !shouldSkip("update") {
		// every writer updates its own record, no conflicts are expected
		results = append(results, runWorkload(ctx, registry, "update", func(ctx context.Context, writer, op int) error {
			rec := records[writer]
			rec.Payload = map[string]any{"value": value, "writer": writer, "op": op}
			return collection.Update(ctx, rec, "perf")
		}))
	}

	if !shouldSkip("history") {
		results = append(results, runWorkload(ctx, registry, "history", func(ctx context.Context, writer, _ int) error {
			_, err := collection.History(ctx, records[writer].ID)
			return err
		}))
	}

	if !shouldSkip("contended") {
		// all writers update the same record, conflicts are retried after a reload
		shared := records[0]
		results = append(results, runWorkload(ctx, registry, "contended", func(ctx context.Context, writer, op int) error {
			for {
				live, err := collection.Get(ctx, shared.ID)
				if err != nil {
					return err
				}
				live.Payload = map[string]any{"value": value, "writer": writer, "op": op}
				err = collection.Update(ctx, &live, "perf")
				if !errors.Is(err, versioning.ErrVersionConflict) {
					return err
				}
				metrics.GetOrRegisterMeter("contended.conflicts", registry).Mark(1)
			}
		}))
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runWorkload runs op perfOps times on each of perfNumThreads goroutines and collects the timings in the registry
func runWorkload(ctx context.Context, registry metrics.Registry, name string, op func(ctx context.Context, writer, op int) error) perfResult {
	timer := metrics.GetOrRegisterTimer(name+".latency", registry)
	errs := metrics.GetOrRegisterMeter(name+".errors", registry)
	conflicts := metrics.GetOrRegisterMeter(name+".conflicts", registry)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < perfOps && ctx.Err() == nil; i++ {
				t := time.Now()
				err := op(ctx, writer, i)
				timer.UpdateSince(t)
				if err != nil {
					errs.Mark(1)
					fmt.Printf("(%s) - error: %v\n", name, err)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ps := timer.Percentiles([]float64{0.5, 0.99})
	result := perfResult{
		Name:      name,
		Ops:       timer.Count(),
		Errors:    errs.Count(),
		Conflicts: conflicts.Count(),
		MeanUs:    timer.Mean() / float64(time.Microsecond),
		P50Us:     ps[0] / float64(time.Microsecond),
		P99Us:     ps[1] / float64(time.Microsecond),
	}
	if elapsed > 0 {
		result.OpsPerSec = float64(result.Ops) / elapsed.Seconds()
	}
	printResult(result)
	return result
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func printResult(r perfResult) {
	fmt.Printf("%-10s %8d ops %10.0f ops/s   mean %8.1fµs   p50 %8.1fµs   p99 %8.1fµs   errors %d   conflicts %d\n",
		r.Name, r.Ops, r.OpsPerSec, r.MeanUs, r.P50Us, r.P99Us, r.Errors, r.Conflicts)
}

func writeResultsToCSV(path string, results []perfResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"workload", "threads", "ops", "errors", "conflicts", "mean_us", "p50_us", "p99_us", "ops_per_sec"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Name,
			strconv.Itoa(perfNumThreads),
			strconv.FormatInt(r.Ops, 10),
			strconv.FormatInt(r.Errors, 10),
			strconv.FormatInt(r.Conflicts, 10),
			strconv.FormatFloat(r.MeanUs, 'f', 2, 64),
			strconv.FormatFloat(r.P50Us, 'f', 2, 64),
			strconv.FormatFloat(r.P99Us, 'f', 2, 64),
			strconv.FormatFloat(r.OpsPerSec, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
