package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/config"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	os.Exit(run())
}

func run() int {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return 0
		}
	}

	fs := ff.NewFlagSet("extract-bill")
	flags := config.Bind(fs)
	xlsxPath := fs.StringLong("xlsx", "", "Also write the line items to this .xlsx file")
	_ = fs.BoolLong("version", "Show version information")

	if err := config.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(fs.GetArgs()) != 1 {
		fmt.Fprintf(os.Stderr, "usage: extract-bill [flags] <document url, data url or path>\n\n%s\n", ffhelp.Flags(fs))
		return 2
	}
	ref := fs.GetArgs()[0]

	cfg, err := flags.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	scanner, err := cfg.NewScanner()
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		return 1
	}
	defer scanner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := cfg.NewService(ctx, scanner, logger)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		return 1
	}

	resp, extractErr := service.Extract(ctx, ref)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		slog.Error("Failed to encode result", "error", err)
		return 1
	}
	if extractErr != nil {
		return 1
	}

	if *xlsxPath != "" {
		if err := writeXLSX(*xlsxPath, resp); err != nil {
			slog.Error("Failed to write workbook", "path", *xlsxPath, "error", err)
			return 1
		}
		slog.Info("Workbook written", "path", *xlsxPath)
	}
	return 0
}

func writeXLSX(path string, resp *bill.ExtractionResponse) error {
	data, err := bill.ExportXLSX(resp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
