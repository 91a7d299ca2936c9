package shrinkroot

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/715d/shrinkroot/internal/enqueue"
	"github.com/715d/shrinkroot/pkg/hierarchy"
	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rootset"
	"github.com/715d/shrinkroot/pkg/rules"
)

// DefaultMaxRounds bounds the alternation of enqueueing and if-rule
// evaluation when AnalyzerOptions.MaxRounds is zero.
const DefaultMaxRounds = 32

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	MaxRounds int // Rounds of enqueueing and if-rule evaluation; zero means DefaultMaxRounds.
	Workers   int // Rule tasks run concurrently; zero means runtime.NumCPU().
}

// Analyzer computes the root set of a program and runs liveness and
// if-rules to a fixed point.
type Analyzer struct {
	opts AnalyzerOptions
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	return &Analyzer{opts: opts}
}

// Result is the outcome of an analysis.
type Result struct {
	App       *program.App
	Hierarchy *hierarchy.Hierarchy
	RootSet   *rootset.RootSet
	Live      *enqueue.Result

	// Rounds is the number of enqueueing passes run.
	Rounds int
	// Converged is false when MaxRounds was reached before a fixed point.
	Converged bool
	// CheckDiscardViolations holds the check-discard items that are still
	// live, sorted by their source strings.
	CheckDiscardViolations []rootset.Item
}

// Analyze builds the root set of app for the given rules, then alternates
// enqueueing and if-rule evaluation until a round pins nothing new.
func (a *Analyzer) Analyze(ctx context.Context, app *program.App, rs []rules.Rule) (*Result, error) {
	start := time.Now()
	builderOpts := rootset.BuilderOptions{Workers: a.opts.Workers}
	h := hierarchy.New(app)
	root := rootset.NewBuilder(app, rs, builderOpts).Run()

	res := &Result{App: app, Hierarchy: h, RootSet: root}
	for res.Rounds < a.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis interrupted after %d rounds: %w", res.Rounds, err)
		}
		res.Rounds++
		res.Live = enqueue.Analyze(h, root)
		if len(root.IfRules) == 0 {
			res.Converged = true
			break
		}
		consequent := rootset.NewIfRuleEvaluator(app, root, &res.Live.Liveness, builderOpts).Run()
		if consequent.IsEmpty() {
			res.Converged = true
			break
		}
		// Fired if-rules materialize fresh keep rules each time, so progress
		// is measured in items rather than in rules.
		before := pinnedItems(root)
		root.Merge(consequent)
		if pinnedItems(root) == before {
			res.Converged = true
			break
		}
	}
	if !res.Converged {
		slog.Warn("root set did not converge",
			"rounds", res.Rounds,
			"maxRounds", a.opts.MaxRounds)
		res.Live = enqueue.Analyze(h, root)
	}

	res.CheckDiscardViolations = checkDiscarded(root, &res.Live.Liveness)
	logReasons(root, res.Live)
	slog.Info("analysis complete",
		"rounds", res.Rounds,
		"pinned", len(res.Live.Pinned),
		"liveTypes", len(res.Live.LiveTypes),
		"liveMethods", len(res.Live.LiveMethods),
		"checkDiscardViolations", len(res.CheckDiscardViolations),
		"duration", time.Since(start))
	return res, nil
}

// pinnedItems counts the distinct items held by the sets Merge grows.
func pinnedItems(rs *rootset.RootSet) int {
	n := len(rs.NoShrinking) + len(rs.NoOptimization) + len(rs.NoObfuscation) +
		len(rs.NeverInline) + len(rs.NeverClassInline)
	for _, deps := range rs.DependentNoShrinking {
		n += len(deps)
	}
	return n
}

// checkDiscarded returns the check-discard items that live proves reachable.
func checkDiscarded(rs *rootset.RootSet, live *rootset.Liveness) []rootset.Item {
	var out []rootset.Item
	for item := range rs.CheckDiscarded {
		if isLive(item, live) {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b rootset.Item) int { return cmp.Compare(a.String(), b.String()) })
	return out
}

func isLive(item rootset.Item, live *rootset.Liveness) bool {
	switch def := item.(type) {
	case *program.ClassDef:
		return live.LiveTypes.Has(def.Type)
	case *program.FieldDef:
		return live.LiveFields.Has(def)
	case *program.MethodDef:
		return live.LiveMethods.Has(def) || live.TargetedMethods.Has(def)
	default:
		panic(fmt.Sprintf("unexpected item %T", item))
	}
}

// logReasons reports, for every item a why-are-you-keeping rule asked
// about, whether it is live and which rules pin it.
func logReasons(rs *rootset.RootSet, live *enqueue.Result) {
	for _, item := range rs.ReasonAsked {
		var reasons []string
		for r := range rs.NoShrinking[item] {
			reasons = append(reasons, r.String())
		}
		slices.Sort(reasons)
		slog.Info("why are you keeping",
			"item", item.String(),
			"live", isLive(item, &live.Liveness),
			"rules", reasons)
	}
}
