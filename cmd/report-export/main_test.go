package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitereports/internal/config"
	"sitereports/internal/export"
)

const payoutsFixture = `{"weeks":[
 {"weekStart":"2025-07-01","weekEnd":"2025-07-07","totalWages":1000,"totalAdvances":200,"netPayout":800},
 {"weekStart":"2025-07-08","weekEnd":"2025-07-14","totalWages":1500,"totalAdvances":100,"netPayout":1400}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "weekly-payouts.json"), []byte(payoutsFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{DataSource: "memory", MemoryDataDir: dataDir}
}

func TestRun_WritesCSV(t *testing.T) {
	cfg := testConfig(t)
	out := t.TempDir()
	var stdout bytes.Buffer

	err := run(context.Background(), []string{"-start", "2025-07-01", "-end", "2025-07-31", "-out", out}, cfg, &stdout)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(out, "weekly-payouts-2025-07-01-to-2025-07-31.csv"))
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	want := "Week Period,Total Wages,Total Advances,Net Payout\n" +
		"2025-07-01 - 2025-07-07,1000,200,800\n" +
		"2025-07-08 - 2025-07-14,1500,100,1400\n"
	if string(content) != want {
		t.Errorf("content =\n%s\nwant\n%s", content, want)
	}
	if !strings.Contains(stdout.String(), "(2 rows,") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_EndOnlyAnchorsDefaultWindow(t *testing.T) {
	cfg := testConfig(t)
	out := t.TempDir()

	if err := run(context.Background(), []string{"-end", "2025-07-31", "-format", "xlsx", "-out", out}, cfg, &bytes.Buffer{}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "weekly-payouts-2025-07-01-to-2025-07-31.xlsx")); err != nil {
		t.Errorf("xlsx not written: %v", err)
	}
}

func TestRun_EmptyReport(t *testing.T) {
	cfg := testConfig(t)
	err := run(context.Background(), []string{"-tab", "material-costs", "-end", "2025-07-31", "-out", t.TempDir()}, cfg, &bytes.Buffer{})
	var empty *export.EmptyDatasetError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyDatasetError, got %v", err)
	}
}

func TestParseFlags_Usage(t *testing.T) {
	tests := [][]string{
		{"-tab", "charts"},
		{"-start", "07/01/2025"},
		{"-format", "pdf"},
		{"extra"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := parseFlags(args, &bytes.Buffer{}); !errors.Is(err, ErrUsage) {
				t.Errorf("parseFlags(%v) = %v, want ErrUsage", args, err)
			}
		})
	}
}
