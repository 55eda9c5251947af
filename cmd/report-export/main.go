// Command report-export resolves a report filter from flags, fetches the
// report and writes it as a CSV or XLSX file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"sitereports/internal/amqp"
	"sitereports/internal/backend"
	"sitereports/internal/cli"
	"sitereports/internal/config"
	"sitereports/internal/core"
	"sitereports/internal/export"
	"sitereports/internal/filtersync"
	"sitereports/internal/services"
	"sitereports/internal/storage"
)

// ErrUsage marks invalid command lines.
var ErrUsage = errors.New("usage")

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], config.Load(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "report-export:", err)
		if errors.Is(err, ErrUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type options struct {
	tab        string
	site       string
	supervisor string
	start      string
	end        string
	format     string
	outDir     string
	source     string
	dataDir    string
	publish    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("report-export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.tab, "tab", string(core.DefaultTab), "report: weekly-payouts | material-costs | supervisor-flow | detailed-logs")
	fs.StringVar(&o.site, "site", core.All, "site id or 'all'")
	fs.StringVar(&o.supervisor, "supervisor", core.All, "supervisor id or 'all'")
	fs.StringVar(&o.start, "start", "", "start date YYYY-MM-DD (default: 30 days before -end)")
	fs.StringVar(&o.end, "end", "", "end date YYYY-MM-DD (default: today)")
	fs.StringVar(&o.format, "format", export.FormatCSV, "csv | xlsx")
	fs.StringVar(&o.outDir, "out", ".", "output directory")
	fs.StringVar(&o.source, "source", "", "data source override: api | memory")
	fs.StringVar(&o.dataDir, "data-dir", "", "fixture directory for the memory source")
	fs.BoolVar(&o.publish, "publish", false, "publish a report.exported event when AMQP_URL is set")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}

	if _, err := core.ParseTab(o.tab); err != nil {
		return o, fmt.Errorf("%w: -tab %q: %v", ErrUsage, o.tab, err)
	}
	for name, v := range map[string]string{"-start": o.start, "-end": o.end} {
		if v == "" {
			continue
		}
		if _, err := core.ParseDate(v); err != nil {
			return o, fmt.Errorf("%w: %s %q: want YYYY-MM-DD", ErrUsage, name, v)
		}
	}
	if o.format != export.FormatCSV && o.format != export.FormatXLSX {
		return o, fmt.Errorf("%w: -format %q: want csv or xlsx", ErrUsage, o.format)
	}
	return o, nil
}

// query renders the options as the reports URL query, so the filter resolves
// exactly as a shared link would.
func (o options) query() url.Values {
	q := url.Values{}
	q.Set(filtersync.ParamTab, o.tab)
	q.Set(filtersync.ParamSite, o.site)
	q.Set(filtersync.ParamSupervisor, o.supervisor)
	if o.start != "" {
		q.Set(filtersync.ParamStartDate, o.start)
	}
	if o.end != "" {
		q.Set(filtersync.ParamEndDate, o.end)
	}
	return q
}

// today anchors the default window on -end when only the end is given.
func (o options) today() func() core.Date {
	if o.end != "" && o.start == "" {
		end, _ := core.ParseDate(o.end)
		return func() core.Date { return end }
	}
	return func() core.Date { return core.DateOf(time.Now()) }
}

func run(ctx context.Context, args []string, cfg *config.Config, stdout io.Writer) error {
	o, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	backendCfg := backend.Config{
		Source:            backend.SourceType(cfg.DataSource),
		ReportsAPIURL:     cfg.ReportsAPIURL,
		ReportsAPIToken:   cfg.ReportsAPIToken,
		ReportsAPITimeout: cfg.ReportsAPITimeout,
		DataDirectory:     cfg.MemoryDataDir,
		Preferences:       backend.MemoryPreferences,
	}
	if o.source != "" {
		backendCfg.Source = backend.SourceType(o.source)
	}
	if o.dataDir != "" {
		backendCfg.DataDirectory = o.dataDir
	}
	if err := backendCfg.Validate(); err != nil {
		return err
	}

	fetcher, err := backend.NewFactory(slog.Default()).CreateFetcher(backendCfg)
	if err != nil {
		return err
	}

	var publisher services.ExportPublisher
	if o.publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.WarnContext(ctx, "AMQP unavailable, export event will not be published", "error", err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	sess := services.NewSession("report-export", services.NewCoordinator(fetcher),
		storage.ForClient(storage.NewMemoryPreferences(), "report-export"), publisher, o.today())
	view, err := sess.Mount(ctx, "/reports", o.query())
	if err != nil {
		return err
	}
	if view.Error != "" {
		return fmt.Errorf("fetch report: %s", view.Error)
	}

	file, err := sess.Export(ctx, o.format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(o.outDir, file.FileName)
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Fprintf(stdout, "wrote %s (%d rows, %s)\n", path, file.Rows, view.URL)
	return nil
}
