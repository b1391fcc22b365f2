package builder

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// moduleExts are the file extensions an import may resolve to, in lookup order.
var moduleExts = []string{".py", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// packageFiles mark a directory as an importable module.
var packageFiles = []string{"__init__", "index"}

// sourceRoots are prefixes under which single-segment imports may resolve.
var sourceRoots = []string{"", "src/", "lib/"}

var (
	pyFromImport = regexp.MustCompile(`^\s*from\s+(\.*[\w.]*)\s+import\s+\(?\s*([\w*]+)`)
	pyImport     = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	jsFrom       = regexp.MustCompile(`\bfrom\s+["']([^"']+)["']`)
	jsBare       = regexp.MustCompile(`^\s*import\s+["']([^"']+)["']`)
	jsRequire    = regexp.MustCompile(`\b(?:require|import)\s*\(\s*["']([^"']+)["']\s*\)`)
)

// ImportResolver maps import statements to known file paths.
type ImportResolver struct {
	files map[string]bool
	// stems maps every trailing segment run of a module stem to the files
	// that end with it, e.g. "pkg/mod" -> ["src/pkg/mod.py"].
	stems map[string][]string
}

// NewImportResolver indexes the known project files.
func NewImportResolver(files []string) *ImportResolver {
	r := &ImportResolver{
		files: make(map[string]bool, len(files)),
		stems: make(map[string][]string),
	}
	for _, f := range files {
		r.files[f] = true
		stem := moduleStem(f)
		if stem == "" {
			continue
		}
		parts := strings.Split(stem, "/")
		for i := range parts {
			key := strings.Join(parts[i:], "/")
			r.stems[key] = append(r.stems[key], f)
		}
	}
	for k, v := range r.stems {
		sort.Slice(v, func(i, j int) bool {
			if len(v[i]) != len(v[j]) {
				return len(v[i]) < len(v[j])
			}
			return v[i] < v[j]
		})
		r.stems[k] = v
	}
	return r
}

// moduleStem strips the extension and package marker file from a path:
// "a/b.py" -> "a/b", "a/__init__.py" -> "a", "web/index.ts" -> "web".
func moduleStem(f string) string {
	ext := path.Ext(f)
	known := false
	for _, e := range moduleExts {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		return ""
	}
	stem := strings.TrimSuffix(f, ext)
	for _, pf := range packageFiles {
		if stem == pf {
			return ""
		}
		if strings.HasSuffix(stem, "/"+pf) {
			return strings.TrimSuffix(stem, "/"+pf)
		}
	}
	return stem
}

// Specifiers extracts the module specifiers named by one import statement.
// "from a.b import c" yields "a.b.c" then "a.b", since c may be a submodule.
// Statements that are already bare specifiers are returned as is.
func Specifiers(stmt string) []string {
	if m := pyFromImport.FindStringSubmatch(stmt); m != nil {
		mod, name := m[1], m[2]
		if name == "*" {
			return []string{mod}
		}
		sub := mod + "." + name
		if strings.HasSuffix(mod, ".") {
			sub = mod + name
		}
		return []string{sub, mod}
	}
	if m := jsFrom.FindStringSubmatch(stmt); m != nil {
		return []string{m[1]}
	}
	if m := jsRequire.FindStringSubmatch(stmt); m != nil {
		return []string{m[1]}
	}
	if m := jsBare.FindStringSubmatch(stmt); m != nil {
		return []string{m[1]}
	}
	if m := pyImport.FindStringSubmatch(stmt); m != nil {
		return []string{m[1]}
	}
	s := strings.TrimSpace(stmt)
	if s == "" || strings.ContainsAny(s, " \t") {
		return nil
	}
	return []string{s}
}

// Resolve returns the known file an import statement in fromFile refers to.
func (r *ImportResolver) Resolve(fromFile, stmt string) (string, bool) {
	for _, spec := range Specifiers(stmt) {
		if target, ok := r.resolveSpecifier(fromFile, spec); ok && target != fromFile {
			return target, true
		}
	}
	return "", false
}

func (r *ImportResolver) resolveSpecifier(fromFile, spec string) (string, bool) {
	switch {
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		return r.lookup(path.Join(path.Dir(fromFile), spec))
	case strings.HasPrefix(spec, "."):
		return r.resolvePythonRelative(fromFile, spec)
	case strings.HasPrefix(spec, "/"):
		return r.lookup(strings.TrimPrefix(spec, "/"))
	}

	// Absolute module: dotted Python or a slash path without a leading dot.
	target := spec
	if !strings.Contains(spec, "/") {
		target = strings.ReplaceAll(spec, ".", "/")
	}
	return r.suffixMatch(target)
}

// resolvePythonRelative handles "from .mod import x" and "from ..pkg import y".
func (r *ImportResolver) resolvePythonRelative(fromFile, spec string) (string, bool) {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	base := path.Dir(fromFile)
	for i := 1; i < dots; i++ {
		base = path.Dir(base)
	}
	rest := strings.ReplaceAll(strings.TrimLeft(spec, "."), ".", "/")
	if rest == "" {
		return r.lookup(base)
	}
	return r.lookup(path.Join(base, rest))
}

// lookup tries p as an exact file, with each known extension, then as a
// package directory.
func (r *ImportResolver) lookup(p string) (string, bool) {
	p = strings.TrimPrefix(path.Clean(p), "./")
	if r.files[p] {
		return p, true
	}
	for _, ext := range moduleExts {
		if r.files[p+ext] {
			return p + ext, true
		}
	}
	for _, pf := range packageFiles {
		for _, ext := range moduleExts {
			c := path.Join(p, pf+ext)
			if r.files[c] {
				return c, true
			}
		}
	}
	return "", false
}

// suffixMatch resolves an absolute module by matching the end of a known
// module stem. Single-segment modules only match at a source root, so that
// "import json" does not bind to some nested json.py.
func (r *ImportResolver) suffixMatch(target string) (string, bool) {
	candidates := r.stems[target]
	if len(candidates) == 0 {
		return "", false
	}
	if strings.Contains(target, "/") {
		return candidates[0], true
	}
	for _, c := range candidates {
		prefix := strings.TrimSuffix(moduleStem(c), target)
		for _, root := range sourceRoots {
			if prefix == root {
				return c, true
			}
		}
	}
	return "", false
}
