package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"cgf", "", true},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetFormatter(t *testing.T) {
	if f, err := GetFormatter(FormatYAML); err != nil {
		t.Fatal(err)
	} else if _, ok := f.(*YAMLFormatter); !ok {
		t.Errorf("expected *YAMLFormatter, got %T", f)
	}
	if f, err := GetFormatter(FormatJSON); err != nil {
		t.Fatal(err)
	} else if _, ok := f.(*JSONFormatter); !ok {
		t.Errorf("expected *JSONFormatter, got %T", f)
	}
	if _, err := GetFormatter(Format("invalid")); err == nil {
		t.Error("GetFormatter should return error for invalid format")
	}
}

type sample struct {
	Pack  string   `json:"pack" yaml:"pack"`
	Files []string `json:"files" yaml:"files"`
}

func TestWrite(t *testing.T) {
	v := sample{Pack: "auth", Files: []string{"auth/login.py"}}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatYAML, "pack: auth\nfiles:\n  - auth/login.py\n"},
		{FormatJSON, "{\n  \"pack\": \"auth\",\n  \"files\": [\n    \"auth/login.py\"\n  ]\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, tt.format, v); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}

	if err := Write(&bytes.Buffer{}, Format("cgf"), v); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("err = %v", err)
	}
}
