package stats

import (
	"fmt"
	"strconv"
	"strings"
)

func round(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

// BuildReport converts a column's accumulator into its output Report
// row, applying the configured decimal-place rounding and the
// engine's sentinel rules for overflow/NaN/singleton-stddev.
func BuildReport(name string, acc *Accumulator, opts Options) Report {
	rep := Report{
		Field:     name,
		Type:      acc.InferredType.String(),
		MinLength: acc.MinLen,
		MaxLength: acc.MaxLen,
		NullCount: acc.Nulls,
	}

	if acc.Total > 0 {
		rep.Sparsity = round(float64(acc.Nulls)/float64(acc.Total), opts.DecimalPlaces)
	}

	numeric := acc.InferredType == TypeInteger || acc.InferredType == TypeFloat
	if numeric && acc.numericCount > 0 {
		sum, sentinel := acc.Sum()
		if sentinel != "" {
			rep.Sum = sentinel
		} else {
			rep.Sum = round(sum, opts.DecimalPlaces)
		}
		rep.Min = round(acc.MinVal, opts.DecimalPlaces)
		rep.Max = round(acc.MaxVal, opts.DecimalPlaces)
		rep.Range = round(acc.MaxVal-acc.MinVal, opts.DecimalPlaces)
		rep.Mean = round(acc.mean, opts.DecimalPlaces)

		if sd, ok := acc.StdDev(); ok {
			rep.StdDev = round(sd, opts.DecimalPlaces)
		}
		if v, ok := acc.Variance(); ok {
			rep.Variance = round(v, opts.DecimalPlaces)
		}

		if opts.Quantiles {
			if q1, med, q3, ok := acc.Quantiles(); ok {
				rep.Q1 = round(q1, opts.DecimalPlaces)
				rep.Q2Median = round(med, opts.DecimalPlaces)
				rep.Median = rep.Q2Median
				rep.Q3 = round(q3, opts.DecimalPlaces)
				rep.IQR = round(q3-q1, opts.DecimalPlaces)
			}
		}
	}

	if opts.Cardinality || opts.Mode {
		rep.Cardinality = strconv.Itoa(acc.Cardinality())
	}
	if opts.Mode {
		rep.Mode = formatExtreme(acc.Mode())
		rep.Antimode = formatExtreme(acc.Antimode())
	}

	return rep
}

func formatExtreme(values []string, count uint64, extraTies int) string {
	if len(values) == 0 {
		return ""
	}
	joined := strings.Join(values, "|")
	if extraTies > 0 {
		return fmt.Sprintf("%s (+%d more tied at %d)", joined, extraTies, count)
	}
	return joined
}

// Header returns the CSV column names for the stats report, in the
// order BuildReport populates the struct, filtered by typesOnly.
func Header(typesOnly bool) []string {
	if typesOnly {
		return []string{"field", "type", "nullcount", "sparsity"}
	}
	return []string{
		"field", "type", "sum", "min", "max", "range", "min_length", "max_length",
		"mean", "stddev", "variance", "nullcount", "sparsity",
		"q1", "q2_median", "q3", "iqr", "cardinality", "mode", "antimode",
	}
}

// Row renders rep as a CSV row matching Header's column order.
func Row(rep Report, typesOnly bool) []string {
	if typesOnly {
		return []string{rep.Field, rep.Type, strconv.FormatUint(rep.NullCount, 10), rep.Sparsity}
	}
	return []string{
		rep.Field, rep.Type, rep.Sum, rep.Min, rep.Max, rep.Range,
		strconv.FormatUint(rep.MinLength, 10), strconv.FormatUint(rep.MaxLength, 10),
		rep.Mean, rep.StdDev, rep.Variance, strconv.FormatUint(rep.NullCount, 10), rep.Sparsity,
		rep.Q1, rep.Q2Median, rep.Q3, rep.IQR, rep.Cardinality, rep.Mode, rep.Antimode,
	}
}
