// Package selectcol compiles a user selection expression — names,
// 1-based indices, ranges, /regex/, and !negation — against a header
// row into an ordered list of 0-based column positions.
package selectcol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/csvengine/core/csvio"
)

// Selection is an ordered, possibly-repeating list of 0-based column
// positions resolved from an expression.
type Selection []int

// Resolve compiles expr against header (which may be nil when the
// source has no header row and the expression uses indices only) and
// returns the resolved Selection.
func Resolve(expr string, header *csvio.HeaderIndex, numCols int) (Selection, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	items := strings.Split(expr, ",")
	var out Selection
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		negate := false
		if strings.HasPrefix(item, "!") {
			negate = true
			item = item[1:]
		}
		positions, err := resolveItem(item, header, numCols)
		if err != nil {
			return nil, fmt.Errorf("selection item %q: %w", raw, err)
		}
		if negate {
			positions = complement(positions, numCols)
		}
		out = append(out, positions...)
	}
	return out, nil
}

func complement(in []int, numCols int) []int {
	excluded := make(map[int]bool, len(in))
	for _, i := range in {
		excluded[i] = true
	}
	var out []int
	for i := 0; i < numCols; i++ {
		if !excluded[i] {
			out = append(out, i)
		}
	}
	return out
}

func resolveItem(item string, header *csvio.HeaderIndex, numCols int) ([]int, error) {
	if item == "1-" {
		out := make([]int, numCols)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	if strings.HasPrefix(item, "/") && strings.HasSuffix(item, "/") && len(item) >= 2 {
		pattern := item[1 : len(item)-1]
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		if header == nil {
			return nil, fmt.Errorf("regex selection requires a header row")
		}
		var out []int
		for i, name := range header.Names() {
			if re.MatchString(name) {
				out = append(out, i)
			}
		}
		return out, nil
	}
	if dash := strings.Index(item, "-"); dash > 0 {
		lo, loErr := resolveEndpoint(item[:dash], header, numCols)
		hi, hiErr := resolveEndpoint(item[dash+1:], header, numCols)
		if loErr == nil && hiErr == nil {
			return expandRange(lo, hi, numCols)
		}
	}
	pos, err := resolveEndpoint(item, header, numCols)
	if err != nil {
		return nil, err
	}
	return []int{pos}, nil
}

func resolveEndpoint(tok string, header *csvio.HeaderIndex, numCols int) (int, error) {
	tok = strings.TrimSpace(tok)
	if n, err := strconv.Atoi(tok); err == nil {
		if n < 1 || n > numCols {
			return 0, fmt.Errorf("index %d out of range [1,%d]", n, numCols)
		}
		return n - 1, nil
	}
	if header == nil {
		return 0, fmt.Errorf("unknown column %q (no header row)", tok)
	}
	pos, ok := header.Position(tok)
	if !ok {
		return 0, fmt.Errorf("unknown column %q", tok)
	}
	return pos, nil
}

func expandRange(lo, hi, numCols int) ([]int, error) {
	if lo == hi {
		return []int{lo}, nil
	}
	var out []int
	if lo < hi {
		for i := lo; i <= hi; i++ {
			out = append(out, i)
		}
	} else {
		for i := lo; i >= hi; i-- {
			out = append(out, i)
		}
	}
	for _, i := range out {
		if i < 0 || i >= numCols {
			return nil, fmt.Errorf("range endpoint %d out of bounds", i)
		}
	}
	return out, nil
}

// Apply extracts the selected fields from rec, in selection order,
// allowing repeats.
func Apply(sel Selection, rec *csvio.Record) [][]byte {
	out := make([][]byte, 0, len(sel))
	for _, i := range sel {
		f, ok := rec.Field(i)
		if !ok {
			f = nil
		}
		out = append(out, f)
	}
	return out
}
