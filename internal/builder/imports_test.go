package builder

import (
	"context"
	"reflect"
	"testing"

	"github.com/Emberfield/autodoc/internal/entity"
)

func TestSpecifiers(t *testing.T) {
	tests := []struct {
		stmt string
		want []string
	}{
		{"import os.path", []string{"os.path"}},
		{"import numpy as np", []string{"numpy"}},
		{"from a.b import c", []string{"a.b.c", "a.b"}},
		{"from . import views", []string{".views", "."}},
		{"from ..pkg import *", []string{"..pkg"}},
		{"from x import (a, b)", []string{"x.a", "x"}},
		{`import { Router } from "./router"`, []string{"./router"}},
		{`import "./styles.css"`, []string{"./styles.css"}},
		{`const fs = require('fs')`, []string{"fs"}},
		{"pkg.module", []string{"pkg.module"}},
		{"not an import", nil},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			if got := Specifiers(tt.stmt); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Specifiers(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestImportResolver(t *testing.T) {
	r := NewImportResolver([]string{
		"src/pkg/__init__.py",
		"src/pkg/core.py",
		"src/pkg/sub/util.py",
		"src/json.py",
		"tools/scripts/json.py",
		"web/app.ts",
		"web/components/index.tsx",
		"web/lib/api.js",
	})

	tests := []struct {
		name   string
		from   string
		stmt   string
		want   string
		wantOK bool
	}{
		{"dotted suffix", "main.py", "import pkg.core", "src/pkg/core.py", true},
		{"package init", "main.py", "import pkg", "src/pkg/__init__.py", true},
		{"from submodule", "src/pkg/core.py", "from pkg.sub import util", "src/pkg/sub/util.py", true},
		{"relative one dot", "src/pkg/core.py", "from .sub.util import f", "src/pkg/sub/util.py", true},
		{"relative two dots", "src/pkg/sub/util.py", "from ..core import g", "src/pkg/core.py", true},
		{"single segment at source root", "main.py", "import json", "src/json.py", true},
		{"stdlib not found", "main.py", "import sys", "", false},
		{"js relative with extension lookup", "web/app.ts", `import { get } from "./lib/api"`, "web/lib/api.js", true},
		{"js directory index", "web/app.ts", `import C from "./components"`, "web/components/index.tsx", true},
		{"js parent dir", "web/lib/api.js", `require("../app")`, "web/app.ts", true},
		{"external package", "web/app.ts", `import React from "react"`, "", false},
		{"self import ignored", "src/pkg/core.py", "import pkg.core", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.from, tt.stmt)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, %v; want %q, %v", tt.from, tt.stmt, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNameMatcher(t *testing.T) {
	e := &entity.Entity{Code: "def run():\n    setup()\n    x = helper (1)\n    setup()\n    print('done')"}
	got, err := NameMatcher{}.CalledNames(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run", "setup", "helper", "print"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CalledNames = %v, want %v", got, want)
	}
}

func TestSyntaxMatcher(t *testing.T) {
	e := &entity.Entity{
		Name:     "handle",
		FilePath: "svc/handler.py",
		Code: "    def handle(self, req):\n" +
			"        # validate(req) is not called here\n" +
			"        msg = \"call notify() later\"\n" +
			"        data = self.parse(req)\n" +
			"        return store(data)\n",
	}

	got, err := NewSyntaxMatcher().CalledNames(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"parse", "store"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CalledNames = %v, want %v", got, want)
	}
}

func TestNewCallDetector(t *testing.T) {
	for _, mode := range []string{"", "name", "syntax", "none"} {
		if _, err := NewCallDetector(mode); err != nil {
			t.Errorf("NewCallDetector(%q): %v", mode, err)
		}
	}
	if d, _ := NewCallDetector("none"); d != nil {
		t.Error("none should disable call detection")
	}
	if _, err := NewCallDetector("llm"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNodeIDs(t *testing.T) {
	a := NodeID(entity.KindFunction, "a.py", "run", 3)
	b := NodeID(entity.KindFunction, "a.py", "run", 9)
	c := NodeID(entity.KindFunction, "b.py", "run", 3)
	if a == b || a == c {
		t.Errorf("IDs should differ by line and path: %s %s %s", a, b, c)
	}
	if a != NodeID(entity.KindFunction, "a.py", "run", 3) {
		t.Error("IDs should be stable")
	}
	if FileID("a.py") == FileID("b.py") {
		t.Error("file IDs should differ by path")
	}
}
