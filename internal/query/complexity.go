package query

import (
	"context"
	"sort"

	"github.com/Emberfield/autodoc/internal/store"
)

// ModuleStats aggregates the entities of one file.
type ModuleStats struct {
	File           string `json:"file" yaml:"file"`
	EntityCount    int    `json:"entity_count" yaml:"entity_count"`
	FunctionCount  int    `json:"function_count" yaml:"function_count"`
	ClassCount     int    `json:"class_count" yaml:"class_count"`
	MethodCount    int    `json:"method_count" yaml:"method_count"`
	DecoratorCount int    `json:"decorator_count" yaml:"decorator_count"`
	ImportCount    int    `json:"import_count" yaml:"import_count"`
	// Score is entity_count + 0.5 × import_count.
	Score float64 `json:"score" yaml:"score"`
	// Complexity is the sum of entity complexity proxies + 0.5 × import_count.
	Complexity float64 `json:"complexity" yaml:"complexity"`
}

// ModuleComplexity returns per-file aggregates, most complex first.
func (e *Engine) ModuleComplexity(ctx context.Context) ([]ModuleStats, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	out := []ModuleStats{}
	for _, f := range s.nodes {
		if f.Kind != store.KindFile {
			continue
		}
		m := ModuleStats{
			File:        f.FilePath,
			ImportCount: s.outDegree(f.ID, store.RelImports),
		}
		sum := 0
		for _, ent := range s.contains[f.ID] {
			m.EntityCount++
			switch ent.Kind {
			case store.KindFunction:
				m.FunctionCount++
			case store.KindClass:
				m.ClassCount++
			case store.KindMethod:
				m.MethodCount++
			}
			m.DecoratorCount += len(ent.Decorators)
			sum += ent.Complexity
		}
		m.Score = float64(m.EntityCount) + 0.5*float64(m.ImportCount)
		m.Complexity = float64(sum) + 0.5*float64(m.ImportCount)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Complexity != out[j].Complexity {
			return out[i].Complexity > out[j].Complexity
		}
		return out[i].File < out[j].File
	})
	return out, nil
}
