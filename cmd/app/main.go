package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"CoinPull/internal/di"
	"CoinPull/internal/repository"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/util"
)

const usage = `usage: coinpull <command> [flags]

commands:
  collect   run the collector and save the table
  report    print the trend report as JSON
  summary   print the dataset summary as JSON
  export    write the table as CSV and XLSX
  chart     render the trend and price charts
  serve     scheduled collection with the HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	resume := fs.Bool("resume", false, "start from the saved table")
	iterations := fs.Int("iterations", -1, "collect: override collector.iterations")
	groupBy := fs.String("group-by", "", "report: group column, \"none\" for no grouping")
	columns := fs.String("columns", "", "report: comma separated columns")
	top := fs.Int("top", analytics.DefaultTopAssets, "summary: number of top assets")
	asset := fs.String("asset", "", "chart: asset for the price history")
	noRun := fs.Bool("no-run-on-start", false, "serve: wait for the first scheduled tick")
	_ = fs.Parse(args)

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	// reading commands always work on the saved table
	cfg.Collector.Resume = *resume || cmd != "collect" && cmd != "serve" || cfg.Collector.Resume
	if *iterations >= 0 {
		cfg.Collector.Iterations = *iterations
	}

	if cmd == "serve" {
		os.Exit(serve(cfg, !*noRun))
	}

	rt, cleanup, err := di.InitializeRuntime(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	switch cmd {
	case "collect":
		err = collect(ctx, rt)
	case "report":
		q := usecase.TrendQuery{Columns: util.SplitList(*columns)}
		if *groupBy != "" {
			g := *groupBy
			if g == "none" {
				g = ""
			}
			q.GroupBy = &g
		}
		err = report(ctx, rt, q)
	case "summary":
		err = summary(ctx, rt, *top)
	case "export":
		err = export(rt)
	case "chart":
		err = charts(ctx, rt, *asset)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	stop()
	cleanup()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, runOnStart bool) int {
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("app initialization failed: %v", err)
		return 1
	}
	defer cleanup()

	log.Printf("env=%s source=%s schedule=%q sinks=%v", cfg.Environment, cfg.Source.Type, cfg.Collector.Schedule, cfg.Sinks.Enabled)

	app.SetRunOnStart(runOnStart)
	// blocks until signal
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		return 1
	}
	return 0
}

func collect(ctx context.Context, rt *di.Runtime) error {
	rt.Pipeline.Start(context.WithoutCancel(ctx))
	defer rt.Pipeline.Stop()

	res, err := rt.Job.Run(ctx)
	if res != nil {
		rt.Logger.Info("collection finished",
			logger.String("run_id", res.RunID),
			logger.Int("succeeded", res.Succeeded),
			logger.Int("failed", res.Failed()),
			logger.Int("rows_added", res.RowsAdded),
			logger.Int("total_rows", res.TotalRows),
			logger.String("file", rt.TableFile.Path()),
		)
	}
	if errors.Is(err, context.Canceled) {
		rt.Logger.Warn("collection interrupted, partial table kept")
		return nil
	}
	return err
}

func report(ctx context.Context, rt *di.Runtime, q usecase.TrendQuery) error {
	r, _, err := rt.Reports.Trends(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(r)
}

func summary(ctx context.Context, rt *di.Runtime, top int) error {
	s, err := rt.Reports.Summary(ctx, top)
	if err != nil {
		return err
	}
	return printJSON(s)
}

func export(rt *di.Runtime) error {
	t := rt.Reports.Table()
	csvPath := rt.TableFile.Path()
	if err := rt.TableFile.Save(t); err != nil {
		return err
	}
	xlsxPath := filepath.Join(rt.Config.Output.Dir, rt.Config.Output.XLSXFile)
	if err := repository.ExportXLSX(xlsxPath, t); err != nil {
		return err
	}
	rt.Logger.Info("table exported",
		logger.Int("rows", t.Len()),
		logger.String("csv", csvPath),
		logger.String("xlsx", xlsxPath),
	)
	return nil
}

func charts(ctx context.Context, rt *di.Runtime, asset string) error {
	out := rt.Config.Output
	if asset == "" {
		asset = out.PriceAsset
	}

	r, _, err := rt.Reports.Trends(ctx, usecase.TrendQuery{})
	if err != nil {
		return err
	}
	trendPath := filepath.Join(out.Dir, out.TrendChart)
	if err := rt.Charts.TrendChart(ctx, r, trendPath); err != nil {
		return fmt.Errorf("trend chart: %w", err)
	}

	pricePath := filepath.Join(out.Dir, out.PriceChart)
	column := analytics.PriceColumn(rt.Config.Source.Convert)
	if err := rt.Charts.PriceChart(ctx, rt.Reports.Table(), asset, column, pricePath); err != nil {
		return fmt.Errorf("price chart: %w", err)
	}
	rt.Logger.Info("charts rendered", logger.String("trend", trendPath), logger.String("price", pricePath))
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
