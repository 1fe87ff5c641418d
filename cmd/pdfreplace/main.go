// Command pdfreplace replaces text in PDF documents.
//
// Usage:
//
//	pdfreplace -in invoice.pdf -out receipt.pdf -map '{"Invoice":"Receipt"}'
//	pdfreplace -in - -out - -map-file map.json < in.pdf > out.pdf
//	pdfreplace serve -config config.json
//
// Exit status is 0 on success, 1 when processing fails and 2 for usage
// errors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tsawler/pdfreplace"
	"github.com/tsawler/pdfreplace/internal/config"
	"github.com/tsawler/pdfreplace/logging"
	"github.com/tsawler/pdfreplace/server"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks errors caused by bad arguments.
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	if len(args) > 0 && args[0] == "serve" {
		err = serve(args[1:], stderr)
	} else {
		err = replace(args, stdin, stdout, stderr)
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "pdfreplace: %v\n", err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "pdfreplace: %v\n", err)
		return exitError
	}
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// replace runs a single replacement from the command line.
func replace(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pdfreplace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input PDF file, - for stdin")
	out := fs.String("out", "", "output PDF file, - for stdout")
	mapping := fs.String("map", "", `replacements as a JSON object, e.g. '{"old":"new"}'`)
	mapFile := fs.String("map-file", "", "file holding the replacements JSON object")
	threshold := fs.Float64("threshold", 0, "vertical movement that starts a new line")
	workers := fs.Int("workers", 0, "pages processed in parallel (0 = number of CPUs)")
	pageList := fs.String("pages", "", "pages to process, e.g. 1,3,5-7 (default all)")
	timeout := fs.Duration("timeout", 0, "abort processing after this long (0 = no limit)")
	verbose := fs.Bool("v", false, "debug logging")
	jsonLogs := fs.Bool("json", false, "log in JSON")
	printReport := fs.Bool("report", false, "print the report as JSON to stderr")
	showVersion := fs.Bool("version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	if *showVersion {
		fmt.Fprintf(stdout, "pdfreplace %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if *in == "" || *out == "" {
		return usagef("-in and -out are required")
	}
	if (*mapping == "") == (*mapFile == "") {
		return usagef("exactly one of -map and -map-file is required")
	}
	if *threshold < 0 {
		return usagef("-threshold cannot be negative")
	}
	pages, err := parsePages(*pageList)
	if err != nil {
		return usagef("%v", err)
	}
	if *out == "-" && isTerminal(stdout) {
		return usagef("refusing to write a PDF to a terminal")
	}

	log, err := newLogger(stderr, *verbose, *jsonLogs, "warn", "text")
	if err != nil {
		return usagef("%v", err)
	}
	logging.SetLogger(log)

	m, err := loadMapping(*mapping, *mapFile)
	if err != nil {
		return err
	}
	data, err := readInput(*in, stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	start := time.Now()
	result, report, err := pdfreplace.Process(ctx, data, m,
		pdfreplace.WithLineBreakThreshold(*threshold),
		pdfreplace.WithWorkers(*workers),
		pdfreplace.WithPages(pages...),
		pdfreplace.WithLogger(log))
	if *printReport && report != nil {
		if err := writeReport(stderr, report); err != nil {
			return err
		}
	}
	if err != nil {
		if pdfreplace.KindOf(err) == pdfreplace.InvalidInput {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return err
	}
	for _, s := range report.Skipped {
		log.Warn("replacement skipped", "key", s.Key, "reason", s.Reason, "page", s.Page)
	}
	log.Info("done", "replaced", report.Replaced, "skipped", len(report.Skipped), "duration", time.Since(start))

	return writeOutput(*out, result, stdout)
}

// serve runs the HTTP service until SIGINT or SIGTERM.
func serve(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("pdfreplace serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "JSON configuration file")
	addr := fs.String("addr", "", "listen address, overrides the configuration")
	verbose := fs.Bool("v", false, "debug logging")
	jsonLogs := fs.Bool("json", false, "log in JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return usagef("%v", err)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := config.Validate(cfg); err != nil {
		return usagef("%v", err)
	}

	log, err := newLogger(stderr, *verbose, *jsonLogs, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return usagef("%v", err)
	}
	logging.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg, log, version).ListenAndServe(ctx)
}

// newLogger builds the process logger. The flags override the configured
// level and format.
func newLogger(w io.Writer, verbose, jsonFormat bool, level, format string) (*slog.Logger, error) {
	if verbose {
		level = "debug"
	}
	if jsonFormat {
		format = "json"
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, format, lvl)
}

// parsePages parses "1,3,5-7" into page numbers.
func parsePages(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || first < 1 {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// loadMapping decodes the replacements from the flag value or file.
func loadMapping(inline, file string) (pdfreplace.Replacement, error) {
	src := []byte(inline)
	if file != "" {
		var err error
		if src, err = os.ReadFile(file); err != nil {
			return nil, fmt.Errorf("failed to read mapping: %w", err)
		}
	}
	var m pdfreplace.Replacement
	if err := json.Unmarshal(src, &m); err != nil {
		return nil, usagef("invalid mapping JSON: %v", err)
	}
	return m, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func writeReport(w io.Writer, report *pdfreplace.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
