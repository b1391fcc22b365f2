package builder

import (
	"fmt"
	"strings"

	"github.com/Emberfield/autodoc/internal/entity"
	"github.com/Emberfield/autodoc/internal/hashing"
)

const maxIDNameLen = 32

// NodeID creates a stable entity node ID.
// Format: <type>-<path-hash>-<line>-<name>
//
// Components:
//   - type: fn/cls/mth
//   - path-hash: HighwayHash of the file path (8 hex chars)
//   - line: start line, to disambiguate same-named entities in one file
//   - name: symbol name (sanitized, max 32 chars)
func NodeID(kind entity.Kind, filePath, name string, line int) string {
	return fmt.Sprintf("%s-%s-%d-%s", typeCode(kind), pathHash(filePath), line, sanitizeName(name))
}

// FileID returns the node ID of a file, derived from its path alone.
func FileID(filePath string) string {
	return "file-" + hashing.Short(hashing.Fields(filePath), 12)
}

func pathHash(filePath string) string {
	return hashing.Short(hashing.Fields(filePath), 8)
}

func typeCode(k entity.Kind) string {
	switch k {
	case entity.KindFunction:
		return "fn"
	case entity.KindClass:
		return "cls"
	case entity.KindMethod:
		return "mth"
	default:
		return "unk"
	}
}

func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		if sb.Len() >= maxIDNameLen {
			break
		}
	}
	return sb.String()
}
