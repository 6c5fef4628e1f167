// Package cli wires the urfave/cli/v2 command surface onto the core
// engine packages: one subcommand per component in the component
// design (stats, frequency, script, index, select), each following the
// same config-mode/flags-mode split — a `--config` file takes
// precedence over individually-supplied flags for that subcommand.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/csvengine/core/batch"
	"github.com/csvengine/core/config"
	"github.com/csvengine/core/csvio"
	"github.com/csvengine/core/freq"
	"github.com/csvengine/core/idx"
	"github.com/csvengine/core/output"
	"github.com/csvengine/core/script"
	"github.com/csvengine/core/selectcol"
	"github.com/csvengine/core/stats"
	"github.com/csvengine/core/tui"
	"github.com/csvengine/core/version"
)

// Shared global flags, reused across every subcommand's Flags slice.
var (
	outputFlag     = &cli.StringFlag{Name: "output", Usage: "output path (default: stdout)"}
	delimiterFlag  = &cli.StringFlag{Name: "delimiter", Value: ",", Usage: "field delimiter"}
	noHeadersFlag  = &cli.BoolFlag{Name: "no-headers"}
	jobsFlag       = &cli.IntFlag{Name: "jobs", Usage: "worker count (default: logical CPU count)"}
	batchFlag      = &cli.IntFlag{Name: "batch", Value: 50_000, Usage: "batch size"}
	configFlag     = &cli.StringFlag{Name: "config", Usage: "TOML config file; overrides flags for this subcommand"}
	reportJSONFlag = &cli.StringFlag{Name: "report-json", Usage: "optional path to write the run report (metadata, row counts, warnings, errors) as JSON"}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{outputFlag, delimiterFlag, noHeadersFlag, jobsFlag, batchFlag, configFlag, reportJSONFlag}
}

// App is the program's urfave/cli/v2 entry point.
var App = &cli.App{
	Name:  "csvengine",
	Usage: "stream CSV through a type-inferring statistics engine, frequency tables, and a BEGIN/MAIN/END script runtime",
	Commands: []*cli.Command{
		statsCommand,
		frequencyCommand,
		scriptCommand,
		indexCommand,
		selectCommand,
	},
}

// --- shared I/O helpers -----------------------------------------------

func inputPath(c *cli.Context) string {
	if p := c.Args().First(); p != "" {
		return p
	}
	return "-"
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %s: %w", path, err)
	}
	return f, nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening output %s: %w", path, err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readerConfig builds a ReaderConfig from the --delimiter flag alone,
// for callers (index, random-access seeking) that open the source file
// directly rather than through buildReader's sniffing path.
func readerConfig(g config.GlobalConfig) csvio.ReaderConfig {
	cfg := csvio.NewReaderConfig()
	if len(g.Delimiter) > 0 {
		cfg.Delimiter = g.Delimiter[0]
	}
	return cfg
}

// buildReader wraps decoded in a peekable buffer so that, when
// SNIFF_DELIMITER is set, the first few sample lines can be inspected to
// auto-detect the delimiter before any record is consumed.
func buildReader(g config.GlobalConfig, decoded io.Reader) *csvio.Reader {
	cfg := readerConfig(g)
	if os.Getenv("SNIFF_DELIMITER") == "" {
		return csvio.NewReader(decoded, cfg)
	}
	br := bufio.NewReaderSize(decoded, 8192)
	if sample, err := br.Peek(4096); err == nil || err == io.EOF {
		cfg.Delimiter = csvio.DetectDelimiter(sample, 10)
	}
	return csvio.NewReader(br, cfg)
}

func globalFromContext(c *cli.Context) config.GlobalConfig {
	return config.GlobalConfig{
		Input:      inputPath(c),
		Output:     c.String("output"),
		Delimiter:  c.String("delimiter"),
		NoHeaders:  c.Bool("no-headers"),
		Jobs:       c.Int("jobs"),
		Batch:      c.Int("batch"),
		ReportJSON: c.String("report-json"),
	}
}

// finishReport stamps rep's final duration and, when g.ReportJSON names
// a path, writes rep as JSON there — the run report is always
// populated, but only marshaled to disk when a command asks for it.
func finishReport(g config.GlobalConfig, rep *output.Report, start time.Time) {
	rep.UpdateDuration(start)
	if g.ReportJSON == "" {
		return
	}
	data, err := rep.ToJSON()
	if err != nil {
		printDiagnostic("report: marshaling failed: %v", err)
		return
	}
	if err := os.WriteFile(g.ReportJSON, data, 0o644); err != nil {
		printDiagnostic("report: writing %s failed: %v", g.ReportJSON, err)
	}
}

func preferDMY() bool { return os.Getenv("PREFER_DMY") != "" }

func progressEnabled() bool { return os.Getenv("PROGRESSBAR") != "" }

// dashboardFor starts a live progress dashboard iff PROGRESSBAR is set,
// returning a post func and a stop func that are both safe to call
// unconditionally (no-ops when disabled).
func dashboardFor(title string) (post func(rows uint64, elapsed time.Duration, warnings, errs int, done bool, summary string), stop func()) {
	if !progressEnabled() {
		return func(uint64, time.Duration, int, int, bool, string) {}, func() {}
	}
	d := tui.NewDashboard(title)
	go d.Run() //nolint:errcheck // dashboard failures are not fatal to the underlying command
	return func(rows uint64, elapsed time.Duration, warnings, errs int, done bool, summary string) {
			d.Post(tui.Update{RowsProcessed: rows, Elapsed: elapsed, Warnings: warnings, Errors: errs, Done: done, Summary: summary})
		}, func() {
			d.Stop()
		}
}

func printDiagnostic(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// --- stats --------------------------------------------------------

var statsCommand = &cli.Command{
	Name:      "stats",
	Usage:     "compute per-column type inference and descriptive statistics",
	ArgsUsage: "[input.csv]",
	Flags: append(globalFlags(),
		&cli.BoolFlag{Name: "cardinality"},
		&cli.BoolFlag{Name: "mode"},
		&cli.BoolFlag{Name: "quantiles"},
		&cli.BoolFlag{Name: "infer-boolean"},
		&cli.BoolFlag{Name: "infer-date"},
		&cli.BoolFlag{Name: "prefer-dmy"},
		&cli.IntFlag{Name: "decimal-places", Value: 4},
		&cli.IntFlag{Name: "mode-tie-cap", Value: 10},
		&cli.StringFlag{Name: "stats-mode", Value: "auto", Usage: "auto | force | none"},
		&cli.BoolFlag{Name: "typesonly"},
	),
	Action: handleStatsCommand,
}

func handleStatsCommand(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		return handleStatsConfigMode(c, path)
	}
	return handleStatsFlagsMode(c)
}

func handleStatsConfigMode(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.Stats == nil {
		return cli.Exit(fmt.Errorf("config %s has no [stats] section", path), 2)
	}
	sc := *cfg.Stats
	if p := c.Args().First(); p != "" {
		sc.Global.Input = p
	}
	return runStats(sc)
}

func handleStatsFlagsMode(c *cli.Context) error {
	sc := config.StatsConfig{
		Global:        globalFromContext(c),
		Cardinality:   c.Bool("cardinality"),
		Mode:          c.Bool("mode"),
		Quantiles:     c.Bool("quantiles"),
		InferBoolean:  c.Bool("infer-boolean"),
		InferDate:     c.Bool("infer-date"),
		PreferDMY:     c.Bool("prefer-dmy") || preferDMY(),
		DecimalPlaces: c.Int("decimal-places"),
		ModeTieCap:    c.Int("mode-tie-cap"),
		StatsMode:     c.String("stats-mode"),
		TypesOnly:     c.Bool("typesonly"),
	}
	return runStats(sc)
}

func runStats(sc config.StatsConfig) error {
	start := time.Now()
	g := config.NormalizeGlobal(sc.Global, runtime.NumCPU())

	in, err := openInput(g.Input)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer in.Close()
	decoded, err := csvio.OpenDecompressed(in)
	if err != nil {
		return cli.Exit(err, 1)
	}

	r := buildReader(g, decoded)
	// Headers() always consumes the stream's first record (the codec has
	// no unread/rewind); under --no-headers that record's arity still
	// seeds numCols, but it is a schema probe only — it is not folded
	// into the accumulators as a data row, a documented simplification
	// of the engine's reader-owns-the-stream design.
	header, err := r.Headers()
	if err != nil {
		return cli.Exit(fmt.Errorf("reading header: %w", err), 1)
	}

	opts := stats.Options{
		Cardinality:   sc.Cardinality,
		Mode:          sc.Mode,
		Quantiles:     sc.Quantiles,
		InferBoolean:  sc.InferBoolean,
		InferDate:     sc.InferDate,
		PreferDMY:     sc.PreferDMY,
		DecimalPlaces: sc.DecimalPlaces,
		ModeTieCap:    sc.ModeTieCap,
	}
	if opts.DecimalPlaces <= 0 {
		opts.DecimalPlaces = 4
	}
	if opts.ModeTieCap <= 0 {
		opts.ModeTieCap = 10
	}

	var fp stats.Fingerprint
	mode := statsMode(sc.StatsMode)
	if mode != stats.ModeNone && g.Input != "-" {
		if f, err := stats.ComputeFingerprint(g.Input, statsCacheFlags(opts)); err == nil {
			fp = f
			if mode == stats.ModeAuto {
				if accs, names, ok := stats.Load(g.Input, fp, opts); ok {
					var cachedRows uint64
					if len(accs) > 0 {
						cachedRows = accs[0].Total
					}
					return writeStatsReport(g, names, accs, opts, sc.TypesOnly, start, true, cachedRows)
				}
			}
		}
	}

	post, stop := dashboardFor("stats")
	defer stop()
	cfg := stats.DefaultEngineConfig()
	cfg.Options = opts
	cfg.TypesOnly = sc.TypesOnly
	cfg.Batch.BatchSize = g.Batch
	cfg.Batch.Jobs = g.Jobs
	accs, totalRows, err := stats.Run(r, header, cfg)
	post(totalRows, time.Since(start), 0, 0, true, fmt.Sprintf("%d rows", totalRows))
	if err != nil {
		return cli.Exit(err, 1)
	}

	names := header.Strings()
	if g.NoHeaders {
		names = syntheticNames(header.Len())
	}
	if len(names) == 0 {
		names = []string{"value"}
	}

	if mode != stats.ModeNone && g.Input != "-" {
		_ = stats.Save(g.Input, fp, names, accs, opts, sc.TypesOnly)
	}

	return writeStatsReport(g, names, accs, opts, sc.TypesOnly, start, false, totalRows)
}

// statsCacheFlags renders a stats.Options the same way a stats run's
// cache fingerprint does, so any other command reading that cache
// (frequency's ALL_UNIQUE short-circuit) hashes flag sets identically
// instead of drifting apart under independent formatting.
func statsCacheFlags(opts stats.Options) string {
	return fmt.Sprintf("%+v", opts)
}

func statsMode(s string) stats.Mode {
	switch s {
	case "force":
		return stats.ModeForce
	case "none":
		return stats.ModeNone
	default:
		return stats.ModeAuto
	}
}

func writeStatsReport(g config.GlobalConfig, names []string, accs []*stats.Accumulator, opts stats.Options, typesOnly bool, start time.Time, fromCache bool, totalRows uint64) error {
	runRep := output.NewReport("stats", version.Version, start)
	runRep.Rows = output.RowCounts{In: totalRows, Out: totalRows}
	if fromCache {
		runRep.AddWarning("cache", "served from stats cache", 1)
	}
	defer finishReport(g, runRep, start)

	out, err := openOutput(g.Output)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer out.Close()
	w := csvio.NewWriter(out, csvio.NewWriterConfig())
	if err := w.WriteStrings(stats.Header(typesOnly)); err != nil {
		return cli.Exit(err, 1)
	}
	for i, acc := range accs {
		name := "value"
		if i < len(names) {
			name = names[i]
		}
		rep := stats.BuildReport(name, acc, opts)
		if err := w.WriteStrings(stats.Row(rep, typesOnly)); err != nil {
			return cli.Exit(err, 1)
		}
	}
	if err := w.Flush(); err != nil {
		return cli.Exit(err, 1)
	}
	suffix := ""
	if fromCache {
		suffix = " (from cache)"
	}
	printDiagnostic("stats: %d columns in %s%s", len(accs), time.Since(start).Round(time.Millisecond), suffix)
	return nil
}

// --- frequency ------------------------------------------------------

var frequencyCommand = &cli.Command{
	Name:      "frequency",
	Usage:     "build per-column value-count (frequency) tables",
	ArgsUsage: "[input.csv]",
	Flags: append(globalFlags(),
		&cli.StringFlag{Name: "select", Usage: "column selection expression (default: all columns)"},
		&cli.IntFlag{Name: "limit", Usage: "0 = unlimited, >0 = top-N + Other, <0 = top-|N| conditional Other"},
		&cli.BoolFlag{Name: "ignore-case"},
		&cli.BoolFlag{Name: "no-nulls"},
		&cli.StringFlag{Name: "other-text", Value: "Other"},
		&cli.BoolFlag{Name: "other-sorted"},
		&cli.IntFlag{Name: "other-min-count"},
		&cli.BoolFlag{Name: "asc"},
		&cli.IntFlag{Name: "pct-dec-places", Value: 5},
		&cli.StringFlag{Name: "chart", Usage: "optional HTML bar-chart output path"},
		&cli.StringFlag{Name: "stats-mode", Value: "auto", Usage: "auto | force | none (consults the stats cache for ALL_UNIQUE short-circuiting)"},
	),
	Action: handleFrequencyCommand,
}

func handleFrequencyCommand(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		return handleFrequencyConfigMode(c, path)
	}
	return handleFrequencyFlagsMode(c)
}

func handleFrequencyConfigMode(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.Frequency == nil {
		return cli.Exit(fmt.Errorf("config %s has no [frequency] section", path), 2)
	}
	fc := *cfg.Frequency
	if p := c.Args().First(); p != "" {
		fc.Global.Input = p
	}
	return runFrequency(fc)
}

func handleFrequencyFlagsMode(c *cli.Context) error {
	fc := config.FrequencyConfig{
		Global:        globalFromContext(c),
		Selection:     c.String("select"),
		Limit:         c.Int("limit"),
		IgnoreCase:    c.Bool("ignore-case"),
		NoNulls:       c.Bool("no-nulls"),
		OtherText:     c.String("other-text"),
		OtherSorted:   c.Bool("other-sorted"),
		OtherMinCount: c.Int("other-min-count"),
		Asc:           c.Bool("asc"),
		PctDecPlaces:  c.Int("pct-dec-places"),
		Chart:         c.String("chart"),
		StatsMode:     c.String("stats-mode"),
	}
	return runFrequency(fc)
}

func runFrequency(fc config.FrequencyConfig) error {
	start := time.Now()
	g := config.NormalizeGlobal(fc.Global, runtime.NumCPU())
	runRep := output.NewReport("frequency", version.Version, start)
	defer finishReport(g, runRep, start)

	in, err := openInput(g.Input)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer in.Close()
	decoded, err := csvio.OpenDecompressed(in)
	if err != nil {
		return cli.Exit(err, 1)
	}
	r := buildReader(g, decoded)
	header, err := r.Headers()
	if err != nil {
		return cli.Exit(fmt.Errorf("reading header: %w", err), 1)
	}
	numCols := header.Len()
	var headerIdx *csvio.HeaderIndex
	if !g.NoHeaders {
		headerIdx = csvio.NewHeaderIndex(header)
	}
	if numCols == 0 {
		numCols = 1
	}

	sel, err := selectcol.Resolve(fc.Selection, headerIdx, numCols)
	if err != nil {
		return cli.Exit(fmt.Errorf("resolving selection: %w", err), 2)
	}
	if sel == nil {
		sel = make(selectcol.Selection, numCols)
		for i := range sel {
			sel[i] = i
		}
	}

	opts := freq.DefaultOptions()
	opts.IgnoreCase = fc.IgnoreCase
	opts.NoNulls = fc.NoNulls
	opts.Limit = fc.Limit
	opts.OtherMinCount = fc.OtherMinCount
	if fc.OtherText != "" {
		opts.OtherText = fc.OtherText
	}
	opts.OtherSorted = fc.OtherSorted
	opts.Asc = fc.Asc
	if fc.PctDecPlaces > 0 {
		opts.PctDecPlaces = fc.PctDecPlaces
	}
	opts.BatchSize = g.Batch
	opts.Jobs = g.Jobs

	var cachedAccs []*stats.Accumulator
	var cachedNames []string
	if mode := statsMode(fc.StatsMode); mode != stats.ModeNone && g.Input != "-" {
		// Matches a cache only when it was written by a `stats
		// --cardinality` run with every other flag at its default: the
		// ALL_UNIQUE check needs the cardinality sketch, and frequency
		// has no equivalent flags of its own to reproduce a more
		// specific flag set.
		cacheOpts := stats.DefaultOptions()
		cacheOpts.Cardinality = true
		if fp, err := stats.ComputeFingerprint(g.Input, statsCacheFlags(cacheOpts)); err == nil {
			cachedAccs, cachedNames, _ = stats.Load(g.Input, fp, cacheOpts)
		}
	}

	post, stop := dashboardFor("frequency")
	defer stop()
	tables, totalRows, err := freq.Run(r, []int(sel), opts)
	post(totalRows, time.Since(start), 0, 0, true, fmt.Sprintf("%d rows", totalRows))
	if err != nil {
		runRep.AddError("run", err.Error(), 1)
		return cli.Exit(err, 1)
	}
	runRep.Rows = output.RowCounts{In: totalRows, Out: totalRows}

	out, err := openOutput(g.Output)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer out.Close()
	w := csvio.NewWriter(out, csvio.NewWriterConfig())
	if err := w.WriteStrings([]string{"field", "value", "count", "percentage"}); err != nil {
		return cli.Exit(err, 1)
	}

	names := header.Strings()
	if g.NoHeaders {
		names = syntheticNames(header.Len())
	}
	var charts []output.FrequencyBucket
	for i, col := range sel {
		name := columnName(names, col)
		if allUniqueColumn(cachedAccs, cachedNames, name, totalRows) {
			runRep.AddWarning("cache", fmt.Sprintf("column %q short-circuited via stats cache (ALL_UNIQUE)", name), 1)
			if err := w.WriteStrings(freq.AllUniqueRow(name)); err != nil {
				return cli.Exit(err, 1)
			}
			continue
		}
		rows := tables[i].Rows(opts)
		for _, row := range freq.CSVRows(name, rows, opts) {
			if err := w.WriteStrings(row); err != nil {
				return cli.Exit(err, 1)
			}
		}
		if i == 0 {
			for _, row := range rows {
				charts = append(charts, output.FrequencyBucket{Value: row.Value, Count: row.Count})
			}
		}
	}
	if err := w.Flush(); err != nil {
		return cli.Exit(err, 1)
	}

	if fc.Chart != "" && len(charts) > 0 {
		if err := output.PlotFrequencyChart(columnName(names, sel[0]), charts, fc.Chart); err != nil {
			printDiagnostic("frequency: chart render failed: %v", err)
		}
	}

	printDiagnostic("frequency: %d rows, %d columns in %s", totalRows, len(sel), time.Since(start).Round(time.Millisecond))
	return nil
}

// syntheticNames builds col1..colN display names for --no-headers runs.
func syntheticNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("col%d", i+1)
	}
	return names
}

func columnName(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("col%d", i+1)
}

func allUniqueColumn(accs []*stats.Accumulator, names []string, name string, totalRows uint64) bool {
	for i, n := range names {
		if n == name {
			return stats.AllUnique(accs, i, totalRows)
		}
	}
	return false
}

// --- script (apply) --------------------------------------------------

var scriptCommand = &cli.Command{
	Name:      "script",
	Usage:     "evaluate a BEGIN/MAIN/END expression per row (map or filter)",
	ArgsUsage: "[input.csv]",
	Flags: append(globalFlags(),
		&cli.StringFlag{Name: "begin"},
		&cli.StringFlag{Name: "main"},
		&cli.StringFlag{Name: "end"},
		&cli.BoolFlag{Name: "filter"},
		&cli.StringSliceFlag{Name: "new-column"},
		&cli.IntFlag{Name: "max-errors", Value: 100},
	),
	Action: handleScriptCommand,
}

func handleScriptCommand(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		return handleScriptConfigMode(c, path)
	}
	return handleScriptFlagsMode(c)
}

func handleScriptConfigMode(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.Script == nil {
		return cli.Exit(fmt.Errorf("config %s has no [script] section", path), 2)
	}
	sc := *cfg.Script
	if p := c.Args().First(); p != "" {
		sc.Global.Input = p
	}
	return runScript(sc, "")
}

func handleScriptFlagsMode(c *cli.Context) error {
	sc := config.ScriptConfig{
		Global:     globalFromContext(c),
		FilterMode: c.Bool("filter"),
		NewColumns: c.StringSlice("new-column"),
		MaxErrors:  c.Int("max-errors"),
	}
	return runScript(sc, c.String("begin")+"\x00"+c.String("main")+"\x00"+c.String("end"))
}

func runScript(sc config.ScriptConfig, flagsSrc string) error {
	start := time.Now()
	g := config.NormalizeGlobal(sc.Global, runtime.NumCPU())
	runRep := output.NewReport("script", version.Version, start)
	defer finishReport(g, runRep, start)

	beginSrc, mainSrc, endSrc := sc.Script, sc.Script, sc.Script
	if flagsSrc != "" {
		parts := splitTriple(flagsSrc)
		beginSrc, mainSrc, endSrc = parts[0], parts[1], parts[2]
	} else {
		// a single Script string from config doubles as MAIN only
		beginSrc, endSrc = "", ""
	}

	in, err := openInput(g.Input)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer in.Close()
	decoded, err := csvio.OpenDecompressed(in)
	if err != nil {
		return cli.Exit(err, 1)
	}
	rcfg := readerConfig(g)
	r := csvio.NewReader(decoded, rcfg)
	header, err := r.Headers()
	if err != nil {
		return cli.Exit(fmt.Errorf("reading header: %w", err), 1)
	}
	if g.NoHeaders {
		header = csvio.NewRecordFromStrings(syntheticNames(header.Len()))
	}
	headerIdx := csvio.NewHeaderIndex(header)

	rt, err := script.NewRuntime(beginSrc, mainSrc, endSrc, headerIdx, script.Options{
		FilterMode: sc.FilterMode,
		NewColumns: sc.NewColumns,
		MaxErrors:  sc.MaxErrors,
	})
	if err != nil {
		return cli.Exit(err, 2)
	}

	var index *idx.Index
	if rt.RandomAccess() || rt.Autoindex() {
		index, err = idx.LoadOrBuild(g.Input, rcfg, !g.NoHeaders)
		if err != nil {
			return cli.Exit(fmt.Errorf("building index: %w", err), 1)
		}
		rt.SetRowCount(index.Len())
		rt.SetLastRow(index.LastRow())
	}

	beginMsg, err := rt.RunBegin()
	if err != nil {
		return cli.Exit(err, 1)
	}
	if beginMsg != "" {
		printDiagnostic("BEGIN: %s", beginMsg)
	}
	// re-check after BEGIN in case qsv_autoindex() was called there
	if index == nil && rt.Autoindex() {
		index, err = idx.LoadOrBuild(g.Input, rcfg, !g.NoHeaders)
		if err != nil {
			return cli.Exit(fmt.Errorf("building index: %w", err), 1)
		}
		rt.SetRowCount(index.Len())
		rt.SetLastRow(index.LastRow())
	}

	out, err := openOutput(g.Output)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer out.Close()
	w := csvio.NewWriter(out, csvio.NewWriterConfig())

	var res batch.Result
	if rt.RandomAccess() {
		res, err = runScriptRandomAccess(rt, index, g, rcfg, w)
	} else {
		post, stop := dashboardFor("script")
		defer stop()
		cfg := batch.DefaultConfig()
		cfg.BatchSize = g.Batch
		cfg.Jobs = g.Jobs
		cfg.MaxErrors = sc.MaxErrors
		cfg.OnBatch = func(r batch.Result) {
			post(r.RowsIn, time.Since(start), 0, int(r.Errors), false, "")
		}
		res, err = batch.Run(r, w, func(idx int64, row []string) ([]string, bool, error) {
			out, keep := rt.Eval(idx, row)
			return out, keep, nil
		}, cfg)
		post(res.RowsIn, time.Since(start), 0, int(res.Errors), true, fmt.Sprintf("%d rows", res.RowsIn))
	}
	if err != nil {
		runRep.AddError("run", err.Error(), 1)
		return cli.Exit(err, 1)
	}
	runRep.Rows = output.RowCounts{In: res.RowsIn, Out: res.RowsOut, Skipped: res.Skipped, Errors: uint64(rt.Errors())}
	if rt.Errors() > 0 {
		runRep.AddWarning("script", fmt.Sprintf("%d record-level errors folded to the error sentinel", rt.Errors()), rt.Errors())
	}

	for _, mail := range rt.Mailbox() {
		if err := w.WriteStrings(mail); err != nil {
			return cli.Exit(err, 1)
		}
	}
	if err := w.Flush(); err != nil {
		return cli.Exit(err, 1)
	}
	for _, line := range rt.Logs() {
		printDiagnostic("log: %s", line)
	}
	if endMsg, err := rt.RunEnd(); err == nil && endMsg != "" {
		printDiagnostic("END: %s", endMsg)
	}

	printDiagnostic("script: %d rows in, %d rows out, %d errors in %s", res.RowsIn, res.RowsOut, rt.Errors(), time.Since(start).Round(time.Millisecond))
	if sc.MaxErrors > 0 && rt.Errors() > sc.MaxErrors {
		return cli.Exit(fmt.Errorf("script error count %d exceeds --max-errors %d", rt.Errors(), sc.MaxErrors), 1)
	}
	return nil
}

// runScriptRandomAccess drives the seek-per-iteration loop MAIN's
// _INDEX/_LASTROW reference forces: inherently sequential, so it
// bypasses the batched parallel pipeline entirely.
func runScriptRandomAccess(rt *script.Runtime, index *idx.Index, g config.GlobalConfig, rcfg csvio.ReaderConfig, w *csvio.Writer) (batch.Result, error) {
	var res batch.Result
	var n uint64
	for n < index.Len() {
		rec, err := idx.ReadAt(g.Input, mustSeek(index, n), rcfg)
		if err != nil {
			return res, fmt.Errorf("reading record %d: %w", n, err)
		}
		out, keep := rt.Eval(int64(n), rec.Strings())
		res.RowsIn++
		if keep {
			if err := w.WriteStrings(out); err != nil {
				return res, err
			}
			res.RowsOut++
		} else {
			res.Skipped++
		}
		seek, ok := rt.NextSeek()
		if !ok {
			break
		}
		n = uint64(seek)
	}
	res.Errors = uint64(rt.Errors())
	return res, nil
}

func mustSeek(index *idx.Index, n uint64) uint64 {
	off, err := index.Seek(n)
	if err != nil {
		return 0
	}
	return off
}

func splitTriple(s string) [3]string {
	var out [3]string
	start, part := 0, 0
	for i := 0; i < len(s) && part < 2; i++ {
		if s[i] == 0 {
			out[part] = s[start:i]
			part++
			start = i + 1
		}
	}
	out[part] = s[start:]
	return out
}

// --- index ------------------------------------------------------------

var indexCommand = &cli.Command{
	Name:      "index",
	Usage:     "build (or rebuild) the sibling byte-offset index file",
	ArgsUsage: "[input.csv]",
	Flags: append(globalFlags(),
		&cli.BoolFlag{Name: "force", Usage: "rebuild even if an up-to-date index exists"},
	),
	Action: handleIndexCommand,
}

func handleIndexCommand(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		return handleIndexConfigMode(c, path)
	}
	return handleIndexFlagsMode(c)
}

func handleIndexConfigMode(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.Index == nil {
		return cli.Exit(fmt.Errorf("config %s has no [index] section", path), 2)
	}
	ic := *cfg.Index
	if p := c.Args().First(); p != "" {
		ic.Global.Input = p
	}
	return runIndex(ic)
}

func handleIndexFlagsMode(c *cli.Context) error {
	return runIndex(config.IndexConfig{
		Global: globalFromContext(c),
		Force:  c.Bool("force"),
	})
}

func runIndex(ic config.IndexConfig) error {
	start := time.Now()
	g := config.NormalizeGlobal(ic.Global, runtime.NumCPU())
	runRep := output.NewReport("index", version.Version, start)
	defer finishReport(g, runRep, start)
	if g.Input == "-" {
		err := fmt.Errorf("index requires a seekable file, not stdin")
		runRep.AddError("input", err.Error(), 1)
		return cli.Exit(err, 2)
	}
	rcfg := readerConfig(g)

	var index *idx.Index
	var err error
	if ic.Force || idx.IsStale(g.Input) {
		index, err = idx.Build(g.Input, rcfg, !g.NoHeaders)
	} else {
		index, err = idx.LoadOrBuild(g.Input, rcfg, !g.NoHeaders)
	}
	if err != nil {
		runRep.AddError("run", err.Error(), 1)
		return cli.Exit(err, 1)
	}
	runRep.Rows = output.RowCounts{In: index.Len(), Out: index.Len()}
	printDiagnostic("index: %d records in %s -> %s", index.Len(), time.Since(start).Round(time.Millisecond), idx.Path(g.Input))
	return nil
}

// --- select -------------------------------------------------------

var selectCommand = &cli.Command{
	Name:      "select",
	Usage:     "project a column selection to a new CSV",
	ArgsUsage: "[input.csv]",
	Flags: append(globalFlags(),
		&cli.StringFlag{Name: "select", Required: true, Usage: "column selection expression"},
	),
	Action: handleSelectCommand,
}

func handleSelectCommand(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		return handleSelectConfigMode(c, path)
	}
	return handleSelectFlagsMode(c)
}

func handleSelectConfigMode(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.Select == nil {
		return cli.Exit(fmt.Errorf("config %s has no [select] section", path), 2)
	}
	sc := *cfg.Select
	if p := c.Args().First(); p != "" {
		sc.Global.Input = p
	}
	return runSelect(sc)
}

func handleSelectFlagsMode(c *cli.Context) error {
	return runSelect(config.SelectConfig{
		Global:    globalFromContext(c),
		Selection: c.String("select"),
	})
}

func runSelect(sc config.SelectConfig) error {
	start := time.Now()
	g := config.NormalizeGlobal(sc.Global, runtime.NumCPU())
	runRep := output.NewReport("select", version.Version, start)
	defer finishReport(g, runRep, start)

	in, err := openInput(g.Input)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer in.Close()
	decoded, err := csvio.OpenDecompressed(in)
	if err != nil {
		return cli.Exit(err, 1)
	}
	r := buildReader(g, decoded)
	header, err := r.Headers()
	if err != nil {
		return cli.Exit(fmt.Errorf("reading header: %w", err), 1)
	}
	numCols := header.Len()
	var headerIdx *csvio.HeaderIndex
	if !g.NoHeaders {
		headerIdx = csvio.NewHeaderIndex(header)
	}
	sel, err := selectcol.Resolve(sc.Selection, headerIdx, numCols)
	if err != nil {
		return cli.Exit(fmt.Errorf("resolving selection: %w", err), 2)
	}

	out, err := openOutput(g.Output)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer out.Close()
	w := csvio.NewWriter(out, csvio.NewWriterConfig())

	post, stop := dashboardFor("select")
	defer stop()
	cfg := batch.DefaultConfig()
	cfg.BatchSize = g.Batch
	cfg.Jobs = g.Jobs
	cfg.OnBatch = func(r batch.Result) { post(r.RowsIn, time.Since(start), 0, 0, false, "") }

	res, err := batch.Run(r, w, func(_ int64, row []string) ([]string, bool, error) {
		rec := csvio.NewRecordFromStrings(row)
		fields := selectcol.Apply(sel, rec)
		out := make([]string, len(fields))
		for i, f := range fields {
			out[i] = string(f)
		}
		return out, true, nil
	}, cfg)
	post(res.RowsIn, time.Since(start), 0, 0, true, fmt.Sprintf("%d rows", res.RowsIn))
	if err != nil {
		runRep.AddError("run", err.Error(), 1)
		return cli.Exit(err, 1)
	}
	runRep.Rows = output.RowCounts{In: res.RowsIn, Out: res.RowsOut, Skipped: res.Skipped, Errors: res.Errors}
	printDiagnostic("select: %d rows in %s", res.RowsOut, time.Since(start).Round(time.Millisecond))
	return nil
}

func init() {
	App.Version = version.Version
}
