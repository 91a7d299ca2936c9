// Package main implements the CLI driver for shrinkroot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/shrinkroot/pkg/hierarchy"
	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rootset"
	"github.com/715d/shrinkroot/pkg/rules"
	"github.com/715d/shrinkroot/pkg/shrinkroot"
)

// Config holds all command-line configuration options.
type Config struct {
	Inputs       []string // program models, Java sources or source directories
	Rules        []string // YAML rule files, applied in order
	Seeds        string   // file the seeds are written to, "-" for stdout
	SeedsFilter  string   // class name list restricting the seeds
	PrintRootSet bool     // print the root set summary
	Verbose      bool     // enables debug logging
	JSON         bool     // enables JSON output format
	Profile      bool     // enables CPU and memory profiling
	Cache        string   // msgpack program cache
	MaxRounds    int      // bound on enqueue and if-rule rounds
	Workers      int      // bound on concurrent tasks, zero for one per CPU

	// resolve subcommand
	Kind    string // invoke kind of the resolution query
	Context string // class the query is issued from
}

const (
	exitCheckDiscard = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shrinkroot [inputs...]",
		Short: "Compute the root set of a Java program",
		Long: `shrinkroot evaluates keep rules against a Java program and reports the
elements that must be retained.

Inputs are YAML program models (.yaml, .yml), Java sources (.java) or
directories of Java sources. Conditional rules are evaluated against the live
part of the program until no rule pins anything new.

The exit status is 1 when an element matched by a checkdiscard rule is still
live and 2 on any other error.`,
		Example: `  shrinkroot --rules rules.yaml --seeds - program.yaml
  shrinkroot --rules rules.yaml --seeds seeds.txt --seeds-filter 'com.example.**' src/
  shrinkroot --rules rules.yaml --print-rootset --cache program.cache src/
  shrinkroot resolve --kind interface 'com.example.I.run()' program.yaml`,
		Args:               cobra.ArbitraryArgs,
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("shrinkroot version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	flags.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	flags.StringVar(&cfg.Cache, "cache", "", "Program cache file, read when present and written otherwise")
	flags.IntVar(&cfg.Workers, "workers", 0, "Maximum number of concurrent tasks (0 means one per CPU)")

	rootCmd.Flags().StringArrayVarP(&cfg.Rules, "rules", "r", nil, "YAML rule file (repeatable)")
	rootCmd.Flags().StringVar(&cfg.Seeds, "seeds", "", "Write the seeds to this file ('-' for stdout)")
	rootCmd.Flags().StringVar(&cfg.SeedsFilter, "seeds-filter", "", "Only write seeds of classes matching this class name list")
	rootCmd.Flags().BoolVar(&cfg.PrintRootSet, "print-rootset", false, "Print the root set summary")
	rootCmd.Flags().IntVar(&cfg.MaxRounds, "max-rounds", shrinkroot.DefaultMaxRounds, "Maximum rounds of liveness and conditional rule evaluation")

	rootCmd.AddCommand(newResolveCmd())
	return rootCmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Inputs = args
	if len(cfg.Inputs) == 0 && cfg.Cache == "" {
		return errWithCode(fmt.Errorf("no inputs provided"), exitError)
	}

	result, err := runAnalysis(cmd.Context(), &cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(cmd.OutOrStdout(), result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if len(result.CheckDiscardViolations) > 0 {
		return errWithCode(nil, exitCheckDiscard)
	}
	return nil
}

func runAnalysis(ctx context.Context, cfg *Config) (*shrinkroot.Result, error) {
	start := time.Now()
	app, err := shrinkroot.Load(ctx, shrinkroot.LoaderOptions{
		Inputs:  cfg.Inputs,
		Cache:   cfg.Cache,
		Workers: cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	var rs []rules.Rule
	for _, path := range cfg.Rules {
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return nil, err
		}
		rs = append(rs, loaded...)
	}
	slog.Info("loaded rules", "files", len(cfg.Rules), "rules", len(rs))

	analyzer := shrinkroot.NewAnalyzer(shrinkroot.AnalyzerOptions{
		MaxRounds: cfg.MaxRounds,
		Workers:   cfg.Workers,
	})
	result, err := analyzer.Analyze(ctx, app, rs)
	if err != nil {
		return nil, err
	}
	slog.Info("analysis completed", "dur", time.Since(start))
	return result, nil
}

func writeResults(w io.Writer, result *shrinkroot.Result, cfg *Config) error {
	if cfg.Seeds != "" {
		if err := writeSeeds(w, result, cfg); err != nil {
			return err
		}
	}
	if cfg.PrintRootSet {
		if _, err := io.WriteString(w, result.RootSet.String()); err != nil {
			return err
		}
	}
	if cfg.JSON {
		return writeJSON(w, result)
	}
	for _, item := range result.CheckDiscardViolations {
		if _, err := fmt.Fprintf(w, "discard check failed: %s is live\n", item); err != nil {
			return err
		}
	}
	return nil
}

func writeSeeds(w io.Writer, result *shrinkroot.Result, cfg *Config) error {
	include := rootset.IncludeAll
	if cfg.SeedsFilter != "" {
		list, err := rules.ParseClassNameList(cfg.SeedsFilter)
		if err != nil {
			return fmt.Errorf("parsing seeds filter: %w", err)
		}
		include = list.Matches
	}

	if cfg.Seeds == "-" {
		return rootset.WriteSeeds(w, result.App, result.Live.Pinned, include)
	}
	file, err := os.Create(cfg.Seeds)
	if err != nil {
		return fmt.Errorf("creating seeds file: %w", err)
	}
	if err := rootset.WriteSeeds(file, result.App, result.Live.Pinned, include); err != nil {
		file.Close()
		return fmt.Errorf("writing seeds: %w", err)
	}
	return file.Close()
}

func writeJSON(w io.Writer, result *shrinkroot.Result) error {
	violations := make([]string, 0, len(result.CheckDiscardViolations))
	for _, item := range result.CheckDiscardViolations {
		violations = append(violations, item.String())
	}
	data, err := json.MarshalIndent(jOutput{
		Stats: jStats{
			Classes:     result.App.NumClasses(),
			Pinned:      len(result.Live.Pinned),
			LiveTypes:   len(result.Live.LiveTypes),
			LiveFields:  len(result.Live.LiveFields),
			LiveMethods: len(result.Live.LiveMethods),
			Rounds:      result.Rounds,
			Converged:   result.Converged,
		},
		CheckDiscardViolations: violations,
		Version:                version,
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

type jOutput struct {
	Stats                  jStats   `json:"stats"`
	CheckDiscardViolations []string `json:"check_discard_violations"`
	Version                string   `json:"version"`
	Timestamp              string   `json:"timestamp"`
}

type jStats struct {
	Classes     int  `json:"classes"`
	Pinned      int  `json:"pinned"`
	LiveTypes   int  `json:"live_types"`
	LiveFields  int  `json:"live_fields"`
	LiveMethods int  `json:"live_methods"`
	Rounds      int  `json:"rounds"`
	Converged   bool `json:"converged"`
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <method> <inputs...>",
		Short: "Resolve a method reference and list its invoke targets",
		Long: `resolve loads a program and answers a single resolution query. The method is
written as "returnType holder.name(params)"; the return type may be omitted
for void methods.`,
		Example: `  shrinkroot resolve 'com.example.Base.run()' program.yaml
  shrinkroot resolve --kind super --context com.example.Sub 'com.example.Base.run()' src/`,
		Args: cobra.MinimumNArgs(2),
		RunE: runResolve,
	}
	cmd.Flags().StringVar(&cfg.Kind, "kind", "virtual", "Invoke kind: static, direct, super, virtual or interface")
	cmd.Flags().StringVar(&cfg.Context, "context", "", "Class issuing the invoke (defaults to the holder)")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	kind, ok := program.ParseInvokeKind(cfg.Kind)
	if !ok {
		return errWithCode(fmt.Errorf("unknown invoke kind %q", cfg.Kind), exitError)
	}
	cfg.Inputs = args[1:]

	app, err := shrinkroot.Load(cmd.Context(), shrinkroot.LoaderOptions{
		Inputs:  cfg.Inputs,
		Cache:   cfg.Cache,
		Workers: cfg.Workers,
	})
	if err != nil {
		return errWithCode(fmt.Errorf("loading program: %w", err), exitError)
	}
	ref, err := app.Factory.ParseMethod(args[0])
	if err != nil {
		return errWithCode(err, exitError)
	}
	var from *program.Type
	if cfg.Context != "" {
		from = app.Factory.Type(cfg.Context)
	}

	res := shrinkroot.Resolve(hierarchy.New(app), kind, ref, from)
	targets := make([]string, 0, len(res.Targets))
	for _, m := range res.Targets {
		targets = append(targets, m.String())
	}

	w := cmd.OutOrStdout()
	if cfg.JSON {
		data, err := json.MarshalIndent(jResolution{
			Reference:  ref.String(),
			Kind:       cfg.Kind,
			Resolution: res.Describe(),
			Targets:    targets,
		}, "", "  ")
		if err != nil {
			return errWithCode(fmt.Errorf("marshaling json output: %w", err), exitError)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	fmt.Fprintln(w, res.Describe())
	for _, target := range targets {
		fmt.Fprintln(w, "  "+target)
	}
	return nil
}

type jResolution struct {
	Reference  string   `json:"reference"`
	Kind       string   `json:"kind"`
	Resolution string   `json:"resolution"`
	Targets    []string `json:"targets"`
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		cpuProfile = nil
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error { return e.err }
