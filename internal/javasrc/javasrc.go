// Package javasrc builds program models from Java source files with
// tree-sitter.
//
// The front end recovers declarations (classes, interfaces, enums and
// annotation types, nested ones included), their members, modifiers and
// annotations. Method bodies are summarized by the classes they instantiate
// and by the constructors they chain to. Other calls and field accesses need
// expression types and are not summarized.
package javasrc

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"golang.org/x/sync/errgroup"

	"github.com/715d/shrinkroot/pkg/program"
)

// parserPool holds reusable Java parsers; a parser is not safe for
// concurrent use.
var parserPool = sync.Pool{
	New: func() any {
		parser := sitter.NewParser()
		parser.SetLanguage(java.GetLanguage())
		return parser
	},
}

// Options configures Load.
type Options struct {
	// Workers bounds the number of files parsed concurrently. Zero means
	// runtime.NumCPU().
	Workers int
	// Kind is the provenance given to the parsed classes, "program" when
	// empty.
	Kind string
}

// File is the result of parsing one compilation unit.
type File struct {
	Path    string
	Package string
	Classes []program.ClassModel

	calls []ctorCall
}

// ctorCall is an instance initializer call whose overload is picked once
// every file is parsed.
type ctorCall struct {
	class, method int
	holder        string
	args          int
}

// Load parses the .java files at paths, walking directories recursively, and
// returns their classes in path order.
func Load(ctx context.Context, paths []string, opts Options) ([]program.ClassModel, error) {
	start := time.Now()
	files, err := Collect(paths)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Each task writes only its own index.
	parsed := make([]*File, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading java source %s: %w", path, err)
			}
			f, err := Parse(ctx, path, src)
			if err != nil {
				return err
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	Link(parsed...)
	var out []program.ClassModel
	for _, f := range parsed {
		for i := range f.Classes {
			if opts.Kind != "" {
				f.Classes[i].Kind = opts.Kind
			}
			out = append(out, f.Classes[i])
		}
	}
	slog.Info("parsed java sources",
		"files", len(files),
		"classes", len(out),
		"duration", time.Since(start))
	return out, nil
}

// Collect expands directories in paths to the .java files below them, in
// lexical order. Files named explicitly are kept whatever their extension.
func Collect(paths []string) ([]string, error) {
	var out []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading java sources %s: %w", root, err)
		}
		if !info.IsDir() {
			out = append(out, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".java") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking java sources %s: %w", root, err)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Parse parses one compilation unit. Syntax errors are logged and the
// recognizable declarations are still returned.
func Parse(ctx context.Context, path string, src []byte) (*File, error) {
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing java source %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		slog.Warn("java source has syntax errors", "path", path)
	}
	p := newFileParser(path, src)
	return p.parse(root), nil
}

// Link resolves the constructor calls of files against every class they
// declare. A call is linked when exactly one instance initializer of the
// target takes as many arguments; calls to unknown classes are only linked
// without arguments.
func Link(files ...*File) {
	classes := make(map[string]*program.ClassModel)
	for _, f := range files {
		for i := range f.Classes {
			if _, ok := classes[f.Classes[i].Name]; !ok {
				classes[f.Classes[i].Name] = &f.Classes[i]
			}
		}
	}
	for _, f := range files {
		for _, call := range f.calls {
			params, ok := pickConstructor(classes[call.holder], call.args)
			if !ok {
				continue
			}
			m := &f.Classes[call.class].Methods[call.method]
			if m.Code == nil {
				m.Code = &program.CodeModel{}
			}
			m.Code.Invoke = append(m.Code.Invoke, program.InvokeModel{
				Kind:   "direct",
				Holder: call.holder,
				Name:   program.InstanceInitializerName,
				Params: params,
			})
		}
		f.calls = nil
	}
}

func pickConstructor(c *program.ClassModel, args int) ([]string, bool) {
	if c == nil {
		return nil, args == 0
	}
	var found []string
	n := 0
	for _, m := range c.Methods {
		if m.Name == program.InstanceInitializerName && len(m.Params) == args {
			found = m.Params
			n++
		}
	}
	return found, n == 1
}
