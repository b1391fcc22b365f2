package packs

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Emberfield/autodoc/internal/graph"
)

// AutoTag marks generated packs.
const AutoTag = "auto-generated"

// DirDensity is the number of entities found directly in a directory.
type DirDensity struct {
	Dir      string `json:"dir" yaml:"dir"`
	Entities int    `json:"entities" yaml:"entities"`
}

// Densities counts entities per directory. Each element of entityFiles is
// the file path of one entity. Files at the repository root are not counted.
// The result is ordered by count descending, then directory name.
func Densities(entityFiles []string) []DirDensity {
	counts := make(map[string]int)
	for _, f := range entityFiles {
		dir := path.Dir(NormalizePath(f))
		if dir == "." || dir == "/" || dir == "" {
			continue
		}
		counts[dir]++
	}

	out := make([]DirDensity, 0, len(counts))
	for dir, n := range counts {
		out = append(out, DirDensity{Dir: dir, Entities: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entities != out[j].Entities {
			return out[i].Entities > out[j].Entities
		}
		return out[i].Dir < out[j].Dir
	})
	return out
}

// AutoGenerate proposes one pack per directory for the topN densest
// directories. Each pack covers its directory recursively.
func AutoGenerate(entityFiles []string, topN int) []Pack {
	dens := Densities(entityFiles)
	if topN > 0 && len(dens) > topN {
		dens = dens[:topN]
	}

	out := make([]Pack, 0, len(dens))
	used := make(map[string]bool, len(dens))
	for _, d := range dens {
		// Distinct directories can share a slug ("a_b" and "a-b").
		name := slug(d.Dir)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d", slug(d.Dir), n)
		}
		used[name] = true

		out = append(out, Pack{
			Name:          name,
			DisplayName:   displayName(d.Dir),
			Description:   fmt.Sprintf("Code under %s/ (%d entities)", d.Dir, d.Entities),
			FilePatterns:  []string{quoteGlob(d.Dir) + "/**"},
			SecurityLevel: SecurityNormal,
			Tags:          []string{AutoTag},
			AutoGenerated: true,
		})
	}
	return out
}

// quoteGlob escapes the glob metacharacters in a literal path.
func quoteGlob(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if strings.IndexByte(`*?[]\`, p[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

func slug(dir string) string {
	s := strings.ToLower(dir)
	s = strings.NewReplacer("/", "-", "_", "-", " ", "-", ".", "").Replace(s)
	return strings.Trim(s, "-")
}

func displayName(dir string) string {
	parts := strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '_' || r == '-' })
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// MergeResult reports what Merge did with each incoming pack.
type MergeResult struct {
	Added    []string `json:"added" yaml:"added"`
	Replaced []string `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	Skipped  []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Merge adds packs to the registry. A pack whose name is already taken by a
// manually configured pack is skipped with a warning unless overwriteManual is
// set; a name taken by a previously generated pack is replaced. Invalid packs
// are skipped as in NewRegistry.
func (r *Registry) Merge(incoming []Pack, overwriteManual bool) MergeResult {
	var res MergeResult

	for i := range incoming {
		p := incoming[i]
		existing, taken := r.packs[p.Name]
		if taken && !existing.AutoGenerated && !overwriteManual {
			r.warn("generated pack would overwrite manual pack, skipped", "pack", p.Name)
			res.Skipped = append(res.Skipped, p.Name)
			continue
		}

		if taken {
			m, err := compilePatterns(p.FilePatterns)
			if err != nil {
				r.warn("skipping pack", "pack", p.Name, "reason", err.Error())
				res.Skipped = append(res.Skipped, p.Name)
				continue
			}
			if !p.SecurityLevel.Valid() {
				p.SecurityLevel = SecurityNormal
			}
			r.packs[p.Name] = &p
			r.matchers[p.Name] = m
			res.Replaced = append(res.Replaced, p.Name)
			continue
		}

		if err := r.add(&p); err != nil {
			r.warn("skipping pack", "pack", p.Name, "reason", err.Error())
			res.Skipped = append(res.Skipped, p.Name)
			continue
		}
		res.Added = append(res.Added, p.Name)
	}

	r.relink()
	return res
}

// relink rebuilds the dependency graph after packs changed.
func (r *Registry) relink() {
	r.deps = graph.New()
	for _, name := range r.order {
		r.deps.AddNode(name)
	}
	r.linkDependencies(false)
}
