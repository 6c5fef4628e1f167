// Package script implements the BEGIN/MAIN/END expression runtime
// used by the `script` (map/filter) subcommand, built on
// github.com/expr-lang/expr.
package script

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/csvengine/core/csvio"
)

// ErrorSentinel is substituted for a row's new-column value when its
// MAIN expression fails in map mode; in filter mode the row is kept
// instead (the loop never drops a row because of a script error).
const ErrorSentinel = "<ERROR>"

// Options controls one script run.
type Options struct {
	// FilterMode: MAIN's truthiness decides whether the row is kept,
	// rather than producing replacement/new column values.
	FilterMode bool
	// NewColumns names the columns a map-mode script populates; when
	// MAIN returns a sequence, values are padded/truncated to this
	// width.
	NewColumns []string
	MaxErrors  int
}

// Runtime holds the compiled BEGIN/MAIN/END programs and the running
// special-variable state shared across row evaluations. The compiled
// programs are immutable and safe to share, but the special-variable
// and mailbox/log state is not — Eval locks mu for its duration so a
// single Runtime can back every worker in the batch pipeline's
// parallel phase without corrupting _IDX or the output mailbox. This
// serializes script evaluation (the CPU-cheap alternative to the
// spec's one-interpreter-per-worker model) rather than dropping
// correctness for parallelism.
type Runtime struct {
	header     *csvio.HeaderIndex
	opts       Options
	begin, end *vm.Program
	main       *vm.Program

	randomAccess bool
	rowCount     uint64
	lastRow      int64

	mu       sync.Mutex
	idx      int64 // current 0-based row; MAIN sees it as _IDX = idx+1
	nextSeek int64 // _INDEX's value after the most recent MAIN call
	haveSeek bool

	errCount int
	mailbox  [][]string
	logs     []string

	globals map[string]any
}

// NewRuntime compiles beginSrc/mainSrc/endSrc (any may be empty) against
// header, and detects random-access mode by the textual presence of
// `_INDEX` or `_LASTROW` in mainSrc — both special variables only make
// sense when the reader can seek, and referencing either is the
// runtime's sole trigger for switching out of streaming mode.
func NewRuntime(beginSrc, mainSrc, endSrc string, header *csvio.HeaderIndex, opts Options) (*Runtime, error) {
	rt := &Runtime{
		header:       header,
		opts:         opts,
		randomAccess: strings.Contains(mainSrc, "_INDEX") || strings.Contains(mainSrc, "_LASTROW"),
		globals:      make(map[string]any),
	}

	env := rt.envTemplate()
	var err error
	if beginSrc != "" {
		if rt.begin, err = expr.Compile(beginSrc, expr.Env(env)); err != nil {
			return nil, fmt.Errorf("compiling BEGIN: %w", err)
		}
	}
	if mainSrc != "" {
		if rt.main, err = expr.Compile(mainSrc, expr.Env(env)); err != nil {
			return nil, fmt.Errorf("compiling MAIN: %w", err)
		}
	}
	if endSrc != "" {
		if rt.end, err = expr.Compile(endSrc, expr.Env(env)); err != nil {
			return nil, fmt.Errorf("compiling END: %w", err)
		}
	}
	return rt, nil
}

// RandomAccess reports whether MAIN referenced _INDEX/_LASTROW,
// forcing sequential, seek-driven execution instead of the batched
// parallel pipeline.
func (rt *Runtime) RandomAccess() bool { return rt.randomAccess }

// SetRowCount and SetLastRow are called once the total row count is
// known (from the index, in random-access mode), before BEGIN runs.
func (rt *Runtime) SetRowCount(n uint64) { rt.rowCount = n }
func (rt *Runtime) SetLastRow(n int64)   { rt.lastRow = n }

// Errors returns the number of row-level script failures so far.
func (rt *Runtime) Errors() int { return rt.errCount }

// Mailbox drains and returns any records queued by the insert() helper.
func (rt *Runtime) Mailbox() [][]string {
	m := rt.mailbox
	rt.mailbox = nil
	return m
}

// Logs drains and returns any lines queued by the log() helper.
func (rt *Runtime) Logs() []string {
	l := rt.logs
	rt.logs = nil
	return l
}

// Autoindex reports whether BEGIN called qsv_autoindex(), requesting
// the caller build/load the sibling index file before iteration.
func (rt *Runtime) Autoindex() bool {
	v, _ := rt.globals["__autoindex"].(bool)
	return v
}

func (rt *Runtime) envTemplate() map[string]any {
	env := map[string]any{
		"_IDX":      int64(0),
		"_ROWCOUNT": uint64(0),
		"_INDEX":    int64(0),
		"_LASTROW":  int64(0),
	}
	for _, name := range rt.header.Names() {
		// nil (interface{}) rather than a concrete type: column values
		// are dynamically typed at runtime (string or float64 depending
		// on how the field parses), so the compiler must not bind a
		// single static type to the name.
		env[name] = nil
	}
	rt.addHelpers(env)
	return env
}

func (rt *Runtime) addHelpers(env map[string]any) {
	env["log"] = func(args ...any) any {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		rt.logs = append(rt.logs, strings.Join(parts, " "))
		return nil
	}
	env["coalesce"] = func(args ...any) any {
		for _, a := range args {
			if s, ok := a.(string); ok {
				if s != "" {
					return s
				}
				continue
			}
			if a != nil {
				return a
			}
		}
		return ""
	}
	env["insert"] = func(fields ...any) any {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = fmt.Sprint(f)
		}
		rt.mailbox = append(rt.mailbox, row)
		return nil
	}
	env["qsv_autoindex"] = func() any {
		rt.globals["__autoindex"] = true
		return nil
	}
}

func (rt *Runtime) rowEnv(row []string) map[string]any {
	env := make(map[string]any, rt.header.Len()+8)
	for i, name := range rt.header.Names() {
		var v string
		if i < len(row) {
			v = row[i]
		}
		env[name] = fieldValue(v)
	}
	env["_IDX"] = rt.idx + 1
	env["_ROWCOUNT"] = rt.rowCount
	env["_INDEX"] = rt.idx
	env["_LASTROW"] = rt.lastRow
	rt.addHelpers(env)
	return env
}

// RunBegin evaluates BEGIN once, before any records are read.
func (rt *Runtime) RunBegin() (string, error) {
	if rt.begin == nil {
		return "", nil
	}
	env := rt.envTemplate()
	env["_ROWCOUNT"] = rt.rowCount
	env["_LASTROW"] = rt.lastRow
	out, err := expr.Run(rt.begin, env)
	if err != nil {
		return "", fmt.Errorf("evaluating BEGIN: %w", err)
	}
	return fmt.Sprint(out), nil
}

// RunEnd evaluates END once, after all records, returning its string
// value for the diagnostic stream.
func (rt *Runtime) RunEnd() (string, error) {
	if rt.end == nil {
		return "", nil
	}
	env := rt.envTemplate()
	env["_ROWCOUNT"] = rt.rowCount
	env["_IDX"] = rt.idx
	env["_LASTROW"] = rt.lastRow
	out, err := expr.Run(rt.end, env)
	if err != nil {
		return "", fmt.Errorf("evaluating END: %w", err)
	}
	return fmt.Sprint(out), nil
}

// NextSeek returns the _INDEX value MAIN left behind after the most
// recent row, and whether the random-access loop should continue: it
// continues only while the value is a valid, non-negative row index
// strictly less than the row count. A negative _INDEX is treated
// identically to an out-of-range one — both terminate the loop — per
// the runtime's confirmed "negative means done" convention.
func (rt *Runtime) NextSeek() (seek int64, ok bool) {
	if !rt.haveSeek {
		return 0, false
	}
	if rt.nextSeek < 0 || uint64(rt.nextSeek) >= rt.rowCount {
		return 0, false
	}
	return rt.nextSeek, true
}

// Eval runs MAIN for one row (idx is the row's 0-based position).
// In map mode it returns the row's replacement/new column values; in
// filter mode it returns the row unchanged, with keep set from MAIN's
// truthiness.
func (rt *Runtime) Eval(idx int64, row []string) (out []string, keep bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.idx = idx
	if rt.main == nil {
		return row, true
	}
	env := rt.rowEnv(row)
	result, err := expr.Run(rt.main, env)
	if rt.randomAccess {
		if v, ok := env["_INDEX"].(int64); ok {
			rt.nextSeek = v
			rt.haveSeek = true
		}
	}
	if err != nil {
		rt.errCount++
		if rt.opts.FilterMode {
			return row, true
		}
		return rt.errorRow(row), true
	}
	if rt.opts.FilterMode {
		return row, truthy(result)
	}
	return rt.mapRow(row, result), true
}

func (rt *Runtime) errorRow(row []string) []string {
	n := len(rt.opts.NewColumns)
	if n == 0 {
		n = 1
	}
	out := append([]string{}, row...)
	for i := 0; i < n; i++ {
		out = append(out, ErrorSentinel)
	}
	return out
}

func (rt *Runtime) mapRow(row []string, result any) []string {
	values := toValues(result)
	n := len(rt.opts.NewColumns)
	if n == 0 {
		n = 1
	}
	padded := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(values) {
			padded[i] = values[i]
		}
	}
	out := append([]string{}, row...)
	return append(out, padded...)
}

func toValues(result any) []string {
	if seq, ok := result.([]any); ok {
		out := make([]string, len(seq))
		for i, v := range seq {
			out[i] = fmt.Sprint(v)
		}
		return out
	}
	return []string{fmt.Sprint(result)}
}

// fieldValue exposes a CSV field to scripts as a float64 when it
// parses as one, else as its raw string, so arithmetic/comparison
// expressions work directly against numeric-looking columns.
func fieldValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	case int, int64, float64:
		f, _ := strconv.ParseFloat(fmt.Sprint(t), 64)
		return f != 0
	default:
		return true
	}
}
