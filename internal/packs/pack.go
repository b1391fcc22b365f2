// Package packs implements context packs: named groups of files selected by
// glob patterns, with security levels and inter-pack dependencies.
//
// Membership is decided by path patterns alone; file contents are never
// inspected. Patterns follow gitignore semantics ("**" spans directories, "*"
// and "?" stop at "/", a pattern with an inner slash is anchored at the
// repository root).
package packs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// SecurityLevel grades how sensitive a pack's code is.
type SecurityLevel string

const (
	SecurityNone     SecurityLevel = "none"
	SecurityNormal   SecurityLevel = "normal"
	SecurityHigh     SecurityLevel = "high"
	SecurityCritical SecurityLevel = "critical"
)

// Valid reports whether l is a known level.
func (l SecurityLevel) Valid() bool {
	switch l {
	case SecurityNone, SecurityNormal, SecurityHigh, SecurityCritical:
		return true
	}
	return false
}

// Pack is a named group of files.
type Pack struct {
	Name          string        `json:"name" yaml:"name" toml:"name"`
	DisplayName   string        `json:"display_name,omitempty" yaml:"display_name,omitempty" toml:"display_name,omitempty"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	FilePatterns  []string      `json:"files" yaml:"files" toml:"files"`
	Dependencies  []string      `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	SecurityLevel SecurityLevel `json:"security_level,omitempty" yaml:"security_level,omitempty" toml:"security_level,omitempty"`
	Tags          []string      `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	AutoGenerated bool          `json:"auto_generated,omitempty" yaml:"auto_generated,omitempty" toml:"auto_generated,omitempty"`
}

// Label returns the display name, falling back to the pack name.
func (p *Pack) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// HasTag reports whether the pack carries tag.
func (p *Pack) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ErrPackNotFound is returned when a pack name is not registered.
var ErrPackNotFound = errors.New("pack not found")

// ErrMalformedPattern is returned for file patterns that cannot be compiled.
var ErrMalformedPattern = errors.New("malformed file pattern")

// validatePattern rejects patterns the matcher would misread: broken bracket
// expressions, and a leading "!" or "#" (negation and comment lines in
// gitignore syntax).
func validatePattern(p string) error {
	p = strings.TrimSpace(p)
	if p == "" {
		return fmt.Errorf("%w: empty pattern", ErrMalformedPattern)
	}
	if p[0] == '!' || p[0] == '#' {
		return fmt.Errorf("%w: %q: patterns cannot start with %q", ErrMalformedPattern, p, p[:1])
	}
	if _, err := path.Match(p, ""); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformedPattern, p, err)
	}
	return nil
}

// normalizePattern anchors patterns that contain an inner slash, matching
// gitignore rules for "dir/file" style entries, then rewrites the glob into
// the line form the gitignore matcher compiles.
func normalizePattern(p string) string {
	p = strings.TrimSpace(strings.TrimPrefix(p, "./"))
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "**/") {
		if i := strings.Index(p, "/"); i >= 0 && i < len(p)-1 {
			p = "/" + p
		}
	}
	return escapeGlob(p)
}

// escapeGlob quotes the regexp metacharacters the matcher passes through
// unchanged and gives "?" and "[!...]" their glob meaning. "*" and "." are
// left to the matcher.
func escapeGlob(p string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\' && i+1 < len(p):
			i++
			writeLiteral(&b, p[i])
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
			if i+1 < len(p) && p[i+1] == '!' {
				b.WriteByte('^')
				i++
			}
		case c == '?':
			b.WriteString("[^/]")
		case strings.IndexByte(regexpMeta, c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

const regexpMeta = "+$^(){}|"

// writeLiteral writes an escaped glob character. The matcher rewrites "." and
// "?" itself and reads a leading "#" or "!" as syntax, so those go inside a
// class.
func writeLiteral(b *strings.Builder, c byte) {
	switch {
	case c == '*':
		b.WriteString(`\*`)
	case c == '.' || c == '?' || c == '#' || c == '!':
		b.WriteByte('[')
		b.WriteByte(c)
		b.WriteByte(']')
	case strings.IndexByte(regexpMeta+`[]\`, c) >= 0:
		b.WriteByte('\\')
		b.WriteByte(c)
	default:
		b.WriteByte(c)
	}
}

// NormalizePath converts a file path to the slash-separated, root-relative form
// patterns are matched against.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return strings.TrimPrefix(p, "/")
}
