package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/dbmux/database"
	"github.com/BaSui01/dbmux/internal/ctxkeys"
	"github.com/BaSui01/dbmux/internal/server"
)

// errMissingSQL --sql 未提供
var errMissingSQL = errors.New("--sql is required")

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// =============================================================================
// 🏥 ping 命令
// =============================================================================

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-target timeout")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	connector := database.NewSQLConnector(cfg.Pool, logger)
	defer connector.Close()

	descriptor, err := database.DescriptorFromConfig(cfg.Database, connector)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	targets := slices.Concat(descriptor.WriteTargets(), descriptor.ReadTargets())
	return pingTargets(ctx, os.Stdout, connector, targets, *timeout)
}

// pingTargets 逐个连接并 Ping，全部失败信息合并返回
func pingTargets(ctx context.Context, w io.Writer, connector database.Connector, targets []database.Target, timeout time.Duration) error {
	var errs []error
	for _, target := range targets {
		start := time.Now()
		err := pingTarget(ctx, connector, target, timeout)
		if err != nil {
			fmt.Fprintf(w, "%-10s FAIL  %v\n", target.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", target.Name, err))
			continue
		}
		fmt.Fprintf(w, "%-10s OK    %s\n", target.Name, time.Since(start).Round(time.Microsecond))
	}
	return errors.Join(errs...)
}

func pingTarget(ctx context.Context, connector database.Connector, target database.Target, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := connector.Connect(ctx, target)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.Ping(ctx)
}

// =============================================================================
// 🔍 query 命令
// =============================================================================

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	query := fs.String("sql", "", "Select statement")
	useWrite := fs.Bool("write", false, "Read from the write target")
	var bindings argList
	fs.Var(&bindings, "arg", "Positional binding (repeatable)")
	fs.Parse(args)

	if *query == "" {
		return errMissingSQL
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	sess := rt.pool.NewSession(ctx)
	defer sess.Close(context.Background())

	cur, err := sess.Cursor(ctx, *query, bindings.bindings(), !*useWrite)
	if err != nil {
		return err
	}
	n, err := writeRows(os.Stdout, cur)
	rt.logger.Debug("query finished", zap.Int("rows", n), zap.String("session_id", sess.ID()))
	return err
}

// writeRows 以 JSON 行输出游标中的每一行
func writeRows(w io.Writer, cur *database.Cursor) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for row, err := range cur.All() {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// =============================================================================
// ✏️ exec 命令
// =============================================================================

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	query := fs.String("sql", "", "Write statement")
	inTx := fs.Bool("tx", false, "Wrap the statement in a transaction")
	attempts := fs.Int("attempts", 1, "Transaction attempts (with --tx)")
	var bindings argList
	fs.Var(&bindings, "arg", "Positional binding (repeatable)")
	fs.Parse(args)

	if *query == "" {
		return errMissingSQL
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	sess := rt.pool.NewSession(ctx)
	defer sess.Close(context.Background())

	affected, err := execStatement(ctx, sess, *query, bindings.bindings(), *inTx, *attempts)
	if err != nil {
		return err
	}
	fmt.Printf("%d row(s) affected\n", affected)
	return nil
}

func execStatement(ctx context.Context, sess *database.Session, query string, bindings []any, inTx bool, attempts int) (int64, error) {
	if !inTx {
		return sess.Update(ctx, query, bindings)
	}

	var affected int64
	err := sess.Transaction(ctx, func(ctx context.Context, conn *database.Connection) error {
		n, err := conn.Update(ctx, query, bindings)
		affected = n
		return err
	}, attempts)
	return affected, err
}

// =============================================================================
// 🚀 bench 命令
// =============================================================================

// benchResult 压测汇总
type benchResult struct {
	Requests int64              `json:"requests"`
	Failures int64              `json:"failures"`
	Elapsed  time.Duration      `json:"elapsed"`
	P50      time.Duration      `json:"p50"`
	P99      time.Duration      `json:"p99"`
	Pool     database.PoolStats `json:"pool"`
}

func runBench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	query := fs.String("sql", "", "Select statement")
	workers := fs.Int("workers", 4, "Concurrent sessions")
	requests := fs.Int("requests", 100, "Statements per worker")
	var bindings argList
	fs.Var(&bindings, "arg", "Positional binding (repeatable)")
	fs.Parse(args)

	if *query == "" {
		return errMissingSQL
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.Metrics.Enabled {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = rt.cfg.Metrics.Addr
		srv := server.NewMetricsServer(srvCfg, nil, rt.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := bench(ctx, rt.pool, *query, bindings.bindings(), *workers, *requests)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// bench 每个 worker 持有独立会话，顺序执行 requests 次查询
func bench(ctx context.Context, pool *database.Pool, query string, bindings []any, workers, requests int) (benchResult, error) {
	if workers < 1 || requests < 1 {
		return benchResult{}, fmt.Errorf("workers and requests must be positive")
	}

	var failures atomic.Int64
	latencies := make([][]time.Duration, workers)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			sess := pool.NewSession(ctxkeys.WithRequestID(gctx, fmt.Sprintf("bench-%d", w)))
			defer sess.Close(context.Background())

			own := make([]time.Duration, 0, requests)
			for i := 0; i < requests; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				t := time.Now()
				if _, err := sess.Select(gctx, query, bindings, true); err != nil {
					failures.Add(1)
					continue
				}
				own = append(own, time.Since(t))
			}
			latencies[w] = own
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	var all []time.Duration
	for _, l := range latencies {
		all = append(all, l...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	return benchResult{
		Requests: int64(workers * requests),
		Failures: failures.Load(),
		Elapsed:  time.Since(start),
		P50:      percentile(all, 0.50),
		P99:      percentile(all, 0.99),
		Pool:     pool.Stats(),
	}, nil
}

// percentile 取已排序样本的分位值
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
