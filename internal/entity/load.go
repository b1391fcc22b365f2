package entity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies an on-disk encoding of parser output.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// FormatFromPath picks a Format from a file extension. Unknown extensions are JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// record is the wire shape of one entity or file line. Parsers disagree on the
// name of the kind field, so all common spellings are accepted.
type record struct {
	Name        string   `json:"name" yaml:"name"`
	Kind        string   `json:"kind" yaml:"kind"`
	Type        string   `json:"type" yaml:"type"`
	EntityType  string   `json:"entity_type" yaml:"entity_type"`
	FilePath    string   `json:"file_path" yaml:"file_path"`
	LineNumber  int      `json:"line_number" yaml:"line_number"`
	EndLine     *int     `json:"end_line" yaml:"end_line"`
	Docstring   string   `json:"docstring" yaml:"docstring"`
	ParentClass string   `json:"parent_class" yaml:"parent_class"`
	Decorators  []string `json:"decorators" yaml:"decorators"`
	Code        string   `json:"code" yaml:"code"`
	Visibility  string   `json:"visibility" yaml:"visibility"`
	Complexity  int      `json:"complexity" yaml:"complexity"`
	IsAsync     bool     `json:"is_async" yaml:"is_async"`
	Parameters  []string `json:"parameters" yaml:"parameters"`

	// File records
	Path     string   `json:"path" yaml:"path"`
	Language string   `json:"language" yaml:"language"`
	Imports  []string `json:"imports" yaml:"imports"`
	Summary  string   `json:"summary" yaml:"summary"`
	Error    string   `json:"error" yaml:"error"`
}

func (r *record) isFile() bool {
	return r.Name == "" && r.Path != ""
}

func (r *record) entity() Entity {
	kind := r.Kind
	if kind == "" {
		kind = r.Type
	}
	if kind == "" {
		kind = r.EntityType
	}
	k := NormalizeKind(kind)
	if k == "" {
		// keep the raw value so Validate reports it
		k = Kind(kind)
	}
	return Entity{
		Name:        r.Name,
		Kind:        k,
		FilePath:    filepath.ToSlash(r.FilePath),
		LineNumber:  r.LineNumber,
		EndLine:     r.EndLine,
		Docstring:   r.Docstring,
		ParentClass: r.ParentClass,
		Decorators:  r.Decorators,
		Code:        r.Code,
		Visibility:  r.Visibility,
		Complexity:  r.Complexity,
		IsAsync:     r.IsAsync,
		Parameters:  r.Parameters,
	}
}

func (r *record) file() File {
	return File{
		Path:     filepath.ToSlash(r.Path),
		Language: r.Language,
		Imports:  r.Imports,
		Summary:  r.Summary,
		Error:    r.Error,
	}
}

type document struct {
	Files    []record `json:"files" yaml:"files"`
	Entities []record `json:"entities" yaml:"entities"`
}

// LoadFile reads parser output from path, choosing the format by extension.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entity file: %w", err)
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path))
}

// Decode reads parser output in the given format.
//
// JSON input is either a document object ({"files": [...], "entities": [...]})
// or a bare array of entity records. JSON Lines input holds one record per
// line; a record with "path" and no "name" is a file record. Lines that fail
// to decode are returned in Document.Skipped rather than failing the load.
func Decode(r io.Reader, format Format) (*Document, error) {
	switch format {
	case FormatJSONL:
		return decodeJSONL(r)
	case FormatYAML:
		var raw document
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml entities: %w", err)
		}
		return fromRaw(raw), nil
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read entities: %w", err)
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return &Document{}, nil
		}
		if data[0] == '[' {
			var records []record
			if err := json.Unmarshal(data, &records); err != nil {
				return nil, fmt.Errorf("decode entity array: %w", err)
			}
			return fromRaw(document{Entities: records}), nil
		}
		var raw document
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode entity document: %w", err)
		}
		return fromRaw(raw), nil
	}
}

func decodeJSONL(r io.Reader) (*Document, error) {
	doc := &Document{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			doc.Skipped = append(doc.Skipped, Skipped{Line: lineNo, Reason: err.Error()})
			continue
		}
		if rec.isFile() {
			doc.Files = append(doc.Files, rec.file())
		} else {
			doc.Entities = append(doc.Entities, rec.entity())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan entity lines: %w", err)
	}
	return doc, nil
}

func fromRaw(raw document) *Document {
	doc := &Document{
		Files:    make([]File, 0, len(raw.Files)),
		Entities: make([]Entity, 0, len(raw.Entities)),
	}
	for i := range raw.Files {
		doc.Files = append(doc.Files, raw.Files[i].file())
	}
	for i := range raw.Entities {
		doc.Entities = append(doc.Entities, raw.Entities[i].entity())
	}
	return doc
}

// Skipped records an input line that could not be decoded.
type Skipped struct {
	Line   int
	Reason string
}
