package query

import (
	"context"
	"path"
	"strings"

	"github.com/Emberfield/autodoc/internal/store"
)

// entryNames are function names that conventionally start a program.
var entryNames = map[string]bool{
	"main": true, "__main__": true, "cli": true, "run": true, "serve": true,
	"app": true, "handler": true, "lambda_handler": true, "start": true,
}

// entryFiles are module files that conventionally start a program.
var entryFiles = map[string]bool{
	"__main__.py": true, "main.py": true, "cli.py": true, "manage.py": true,
	"wsgi.py": true, "asgi.py": true, "app.py": true,
	"main.ts": true, "main.js": true, "index.ts": true, "index.js": true, "server.ts": true, "server.js": true,
}

// entryDecorators mark an entity as invoked by a framework. They qualify it
// even when something in the code also calls it.
var entryDecorators = []string{
	"click.command", "click.group", "app.command", "typer", "cli.command",
	"app.route", "app.get", "app.post", "app.put", "app.delete", "app.patch",
	"router.get", "router.post", "router.put", "router.delete", "router.patch",
	"blueprint.route", "bp.route", "api_view", "task", "celery",
}

// EntryPoint is a node believed to be invoked from outside the code.
type EntryPoint struct {
	Ref
	Reasons []string `json:"reasons" yaml:"reasons"`
}

// EntryPoints classifies Function, Method and File nodes as entry points.
// A node qualifies with a framework decorator, or when nothing calls or
// imports it and its name follows an entry-point convention.
func (e *Engine) EntryPoints(ctx context.Context) ([]EntryPoint, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []EntryPoint
	for _, n := range s.nodes {
		if n.IsTest {
			continue
		}
		uncalled := s.inDegree(n.ID, store.RelCalls, store.RelImports) == 0

		var reasons []string
		switch n.Kind {
		case store.KindFunction, store.KindMethod:
			if d := entryDecorator(n.Decorators); d != "" {
				reasons = append(reasons, "decorator "+d)
			}
			if uncalled && entryNames[strings.ToLower(n.Name)] {
				reasons = append(reasons, "entry-point name, no callers")
			}
		case store.KindFile:
			if uncalled && entryFiles[path.Base(n.FilePath)] {
				reasons = append(reasons, "entry-point module, not imported")
			}
		}
		if len(reasons) > 0 {
			out = append(out, EntryPoint{Ref: refOf(n), Reasons: reasons})
		}
	}
	return out, nil
}

func entryDecorator(decorators []string) string {
	for _, d := range decorators {
		name := strings.ToLower(strings.TrimPrefix(d, "@"))
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		for _, marker := range entryDecorators {
			if name == marker || strings.HasSuffix(name, "."+marker) || strings.HasPrefix(name, marker+".") {
				return d
			}
		}
	}
	return ""
}
