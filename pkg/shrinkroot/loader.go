// Package shrinkroot loads programs and computes their root sets, running
// liveness and conditional rules to a fixed point.
package shrinkroot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/shrinkroot/internal/javasrc"
	"github.com/715d/shrinkroot/pkg/program"
)

// LoaderOptions configures program loading.
type LoaderOptions struct {
	// Inputs are YAML program models (.yaml, .yml), Java sources (.java) or
	// directories of Java sources.
	Inputs []string

	// Cache is a program cache file. When it exists it is loaded instead of
	// Inputs; otherwise the model loaded from Inputs is written to it.
	Cache string

	// Workers bounds concurrent parsing and class construction. Zero means
	// runtime.NumCPU().
	Workers int
}

func (o LoaderOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Load loads the program described by opts.
func Load(ctx context.Context, opts LoaderOptions) (*program.App, error) {
	m, err := LoadModel(ctx, opts)
	if err != nil {
		return nil, err
	}
	return BuildApp(ctx, m, opts.Workers)
}

// LoadModel reads the inputs of opts, or the cache when there is one.
func LoadModel(ctx context.Context, opts LoaderOptions) (*program.Model, error) {
	if opts.Cache != "" {
		m, err := LoadCache(opts.Cache)
		if err == nil {
			slog.Info("loaded program cache", "path", opts.Cache, "classes", len(m.Classes))
			return m, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}

	m := &program.Model{}
	var sources []string
	for _, input := range opts.Inputs {
		switch ext := strings.ToLower(filepath.Ext(input)); ext {
		case ".yaml", ".yml":
			part, err := ReadModel(input)
			if err != nil {
				return nil, err
			}
			m.Append(part)
		case ".java":
			sources = append(sources, input)
		default:
			info, err := os.Stat(input)
			if err != nil {
				return nil, fmt.Errorf("reading input %s: %w", input, err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("unsupported input %s", input)
			}
			sources = append(sources, input)
		}
	}
	if len(sources) > 0 {
		classes, err := javasrc.Load(ctx, sources, javasrc.Options{Workers: opts.Workers})
		if err != nil {
			return nil, err
		}
		m.Classes = append(m.Classes, classes...)
	}

	if opts.Cache != "" {
		if err := SaveCache(opts.Cache, m); err != nil {
			return nil, err
		}
		slog.Info("saved program cache", "path", opts.Cache, "classes", len(m.Classes))
	}
	return m, nil
}

// ReadModel decodes a YAML program model.
func ReadModel(path string) (*program.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program %s: %w", path, err)
	}
	var m program.Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing program %s: %w", path, err)
	}
	return &m, nil
}

// BuildApp interns the classes of m concurrently and indexes them. A
// library java.lang.Object is added when m does not define one.
func BuildApp(ctx context.Context, m *program.Model, workers int) (*program.App, error) {
	start := time.Now()
	m = withObject(m)
	f := program.NewFactory()

	// Each task writes only its own index.
	defs := make([]*program.ClassDef, len(m.Classes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(LoaderOptions{Workers: workers}.workers())
	for i := range m.Classes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, err := m.Classes[i].Build(f)
			if err != nil {
				return fmt.Errorf("building program: %w", err)
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	app := program.NewApp(f, defs, m.MergedClasses(f))
	slog.Info("loaded program",
		"classes", app.NumClasses(),
		"program", len(app.ProgramClasses()),
		"library", len(app.LibraryClasses()),
		"types", f.NumTypes(),
		"duration", time.Since(start))
	return app, nil
}
