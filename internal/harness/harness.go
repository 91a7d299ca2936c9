package harness

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/shrinkroot/pkg/rootset"
	"github.com/715d/shrinkroot/pkg/rules"
	"github.com/715d/shrinkroot/pkg/shrinkroot"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// Run executes a test case with all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	var results []ConfigurationResult
	allSuccess := true
	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, tc, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration executes the analysis for a single configuration.
func (h *TestHarness) runConfiguration(t *testing.T, tc *TestCase, cfg Configuration) *ConfigurationResult {
	t.Helper()
	dir := filepath.Join(h.root, tc.Dir)

	result, err := analyze(t, dir, cfg)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	return validateConfigurationResults(t, cfg, result)
}

func analyze(t *testing.T, dir string, cfg Configuration) (*shrinkroot.Result, error) {
	t.Helper()
	app, err := shrinkroot.Load(t.Context(), shrinkroot.LoaderOptions{
		Inputs:  resolvePaths(dir, cfg.inputs()),
		Workers: 2,
	})
	if err != nil {
		return nil, err
	}

	var rs []rules.Rule
	for _, path := range resolvePaths(dir, cfg.rules()) {
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return nil, err
		}
		rs = append(rs, loaded...)
	}

	return shrinkroot.NewAnalyzer(shrinkroot.AnalyzerOptions{
		MaxRounds: cfg.MaxRounds,
		Workers:   2,
	}).Analyze(t.Context(), app, rs)
}

// validateConfigurationResults compares actual results with expected for a
// specific configuration.
func validateConfigurationResults(t *testing.T, cfg Configuration, result *shrinkroot.Result) *ConfigurationResult {
	t.Helper()
	cfgResult := &ConfigurationResult{
		Configuration: cfg,
		Result:        result,
		Success:       true,
	}

	var seeds bytes.Buffer
	require.NoError(t, rootset.WriteSeeds(&seeds, result.App, result.Live.Pinned, rootset.IncludeAll))
	cfgResult.compare("seed", cfg.ExpectedSeeds, lines(seeds.String()))

	if cfg.ExpectedLive != nil {
		var live []string
		for ty := range result.Live.LiveTypes {
			if def := result.App.DefinitionFor(ty); def != nil && def.IsProgramClass() {
				live = append(live, ty.String())
			}
		}
		cfgResult.compare("live class", cfg.ExpectedLive, live)
	}

	if cfg.ExpectedLiveMethods != nil {
		var live []string
		for m := range result.Live.LiveMethods {
			if def := result.App.DefinitionFor(m.Holder()); def != nil && def.IsProgramClass() {
				live = append(live, m.String())
			}
		}
		cfgResult.compare("live method", cfg.ExpectedLiveMethods, live)
	}

	var violations []string
	for _, item := range result.CheckDiscardViolations {
		violations = append(violations, item.String())
	}
	cfgResult.compare("discard violation", cfg.ExpectedDiscardViolations, violations)

	if cfg.Rounds != 0 && cfg.Rounds != result.Rounds {
		cfgResult.fail(fmt.Sprintf("Expected %d rounds, got %d", cfg.Rounds, result.Rounds))
	}

	if cfgResult.Success {
		cfgResult.Message = fmt.Sprintf("All %d expected seeds found", len(cfg.ExpectedSeeds))
	} else {
		cfgResult.Message = fmt.Sprintf("Test failed with %d differences", len(cfgResult.Details))
	}
	return cfgResult
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Result is the raw result from the analyzer.
	Result *shrinkroot.Result

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

func (r *ConfigurationResult) fail(detail string) {
	r.Success = false
	r.Details = append(r.Details, detail)
}

// compare records every expected line that is missing from actual and every
// actual line that was not expected.
func (r *ConfigurationResult) compare(what string, expected, actual []string) {
	expectedSet := make(map[string]bool, len(expected))
	for _, e := range expected {
		expectedSet[e] = true
	}
	actualSet := make(map[string]bool, len(actual))
	for _, a := range actual {
		actualSet[a] = true
	}

	var missing, unexpected []string
	for e := range expectedSet {
		if !actualSet[e] {
			missing = append(missing, e)
		}
	}
	for a := range actualSet {
		if !expectedSet[a] {
			unexpected = append(unexpected, a)
		}
	}

	// Sort for consistent output.
	sort.Strings(missing)
	sort.Strings(unexpected)
	for _, m := range missing {
		r.fail(fmt.Sprintf("Missing %s: %s", what, m))
	}
	for _, u := range unexpected {
		r.fail(fmt.Sprintf("Unexpected %s: %s", what, u))
	}
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Message provides a summary of the result.
	Message string
}

func lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
