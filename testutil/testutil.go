// Package testutil provides fixture helpers shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

// GenerateTestCSVFile creates a temporary CSV file with a header and
// numRows fictional data rows, cycling through a small pool of sample
// records for variety. Returns the file path and a cleanup function.
func GenerateTestCSVFile(t *testing.T, numRows int) (string, func()) {
	t.Helper()

	if numRows < 1 {
		numRows = 1
	}

	tmpFile, err := os.CreateTemp("", "test_data_*.csv")
	if err != nil {
		t.Fatalf("failed to create temp CSV file: %v", err)
	}

	sampleRows := [][]string{
		{"alice", "34", "engineering", "2024-01-15"},
		{"bob", "29", "sales", "2024-02-20"},
		{"carol", "41", "engineering", "2023-11-03"},
		{"dave", "22", "support", "2024-05-09"},
		{"erin", "", "sales", "2024-03-30"},
		{"frank", "58", "executive", "2022-07-11"},
		{"grace", "31", "engineering", "2024-06-18"},
		{"heidi", "27", "support", ""},
		{"ivan", "45", "sales", "2023-09-01"},
		{"judy", "38", "engineering", "2024-04-22"},
	}

	var content strings.Builder
	content.WriteString("name,age,department,joined\n")
	for i := 0; i < numRows; i++ {
		row := sampleRows[i%len(sampleRows)]
		content.WriteString(strings.Join(row, ","))
		content.WriteString("\n")
	}

	if _, err := tmpFile.WriteString(content.String()); err != nil {
		t.Fatalf("failed to write temp CSV file: %v", err)
	}
	tmpFile.Close()

	cleanup := func() { os.Remove(tmpFile.Name()) }
	return tmpFile.Name(), cleanup
}

// GenerateNumericCSVFile creates a temporary single-column CSV file
// named "value" whose rows are 1..numRows, useful for statistics-engine
// fixtures that need a known sum/mean/variance.
func GenerateNumericCSVFile(t *testing.T, numRows int) (string, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "test_numeric_*.csv")
	if err != nil {
		t.Fatalf("failed to create temp CSV file: %v", err)
	}
	var content strings.Builder
	content.WriteString("value\n")
	for i := 1; i <= numRows; i++ {
		fmt.Fprintf(&content, "%d\n", i)
	}
	if _, err := tmpFile.WriteString(content.String()); err != nil {
		t.Fatalf("failed to write temp CSV file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name(), func() { os.Remove(tmpFile.Name()) }
}

// TempFilePath returns a cross-platform temporary file path with the
// given pattern. Does not create the file.
func TempFilePath(t *testing.T, pattern string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	path := tmpFile.Name()
	tmpFile.Close()
	os.Remove(path)

	return path
}

// TempDirPath returns a cross-platform temporary directory path.
func TempDirPath(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
