package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/store"
)

func parse(t *testing.T, language, source string) *Result {
	t.Helper()
	p := New(nil)
	res, err := p.Parse(context.Background(), "test."+language, language, []byte(source))
	require.NoError(t, err)
	return res
}

func symbolByFQN(t *testing.T, res *Result, fqn string) store.Symbol {
	t.Helper()
	for _, s := range res.Symbols {
		if s.FQN == fqn {
			return s
		}
	}
	t.Fatalf("symbol %q not found in %v", fqn, fqns(res))
	return store.Symbol{}
}

func fqns(res *Result) []string {
	out := make([]string, len(res.Symbols))
	for i, s := range res.Symbols {
		out[i] = s.FQN
	}
	return out
}

func hasRef(res *Result, toName string, typ store.EdgeType) bool {
	for _, r := range res.Refs {
		if r.ToName == toName && r.Type == typ {
			return true
		}
	}
	return false
}

func TestParsePython(t *testing.T) {
	src := `import os
from collections import OrderedDict

def helper(x):
    return os.path.join(x, "y")

class Base:
    pass

class Widget(Base):
    def render(self):
        return helper(self.name)
`
	res := parse(t, "python", src)

	helper := symbolByFQN(t, res, "helper")
	assert.Equal(t, store.SymbolFunction, helper.Kind)
	assert.Equal(t, 4, helper.StartLine)

	widget := symbolByFQN(t, res, "Widget")
	assert.Equal(t, store.SymbolClass, widget.Kind)

	render := symbolByFQN(t, res, "Widget.render")
	assert.Equal(t, store.SymbolMethod, render.Kind)
	assert.Equal(t, "render", render.SimpleName)

	assert.True(t, hasRef(res, "os", store.EdgeImports))
	assert.True(t, hasRef(res, "collections", store.EdgeImports))
	assert.True(t, hasRef(res, "Base", store.EdgeInherits))
	assert.True(t, hasRef(res, "helper", store.EdgeCalls))
	// obj.method() reduces to the attribute name.
	assert.True(t, hasRef(res, "join", store.EdgeCalls))
}

func TestParseGo(t *testing.T) {
	src := `package server

import (
	"fmt"
	"net/http"
)

type Handler struct{ n int }

type Doer interface{ Do() }

func helper(s string) string { return fmt.Sprintf("%q", s) }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = helper("x")
}
`
	res := parse(t, "go", src)

	assert.Equal(t, store.SymbolStruct, symbolByFQN(t, res, "Handler").Kind)
	assert.Equal(t, store.SymbolInterface, symbolByFQN(t, res, "Doer").Kind)
	assert.Equal(t, store.SymbolFunction, symbolByFQN(t, res, "helper").Kind)

	serve := symbolByFQN(t, res, "Handler.ServeHTTP")
	assert.Equal(t, store.SymbolMethod, serve.Kind)
	assert.Equal(t, "ServeHTTP", serve.SimpleName)

	assert.True(t, hasRef(res, "fmt", store.EdgeImports))
	assert.True(t, hasRef(res, "net/http", store.EdgeImports))
	assert.True(t, hasRef(res, "helper", store.EdgeCalls))
	assert.True(t, hasRef(res, "Sprintf", store.EdgeCalls))
}

func TestParseTypeScript(t *testing.T) {
	src := `import { render } from "./render";

export interface Shape {
  area(): number;
}

export class Circle implements Shape {
  area(): number { return 3.14; }
}

export class BigCircle extends Circle {
  area(): number { return super.area() * 2; }
}

const draw = (s: Shape) => render(s);
`
	res := parse(t, "typescript", src)

	assert.Equal(t, store.SymbolInterface, symbolByFQN(t, res, "Shape").Kind)
	assert.Equal(t, store.SymbolClass, symbolByFQN(t, res, "Circle").Kind)
	assert.Equal(t, store.SymbolMethod, symbolByFQN(t, res, "Circle.area").Kind)
	assert.Equal(t, store.SymbolFunction, symbolByFQN(t, res, "draw").Kind)

	assert.True(t, hasRef(res, "./render", store.EdgeImports))
	assert.True(t, hasRef(res, "Shape", store.EdgeImplements))
	assert.True(t, hasRef(res, "Circle", store.EdgeInherits))
	assert.True(t, hasRef(res, "render", store.EdgeCalls))
}

func TestParseJavaScript(t *testing.T) {
	src := `import util from "./util";

function greet(name) {
  return util.format(name);
}

class Animal {}

class Dog extends Animal {
  speak() { return greet("dog"); }
}
`
	res := parse(t, "javascript", src)

	assert.Equal(t, store.SymbolFunction, symbolByFQN(t, res, "greet").Kind)
	assert.Equal(t, store.SymbolClass, symbolByFQN(t, res, "Dog").Kind)
	assert.Equal(t, store.SymbolMethod, symbolByFQN(t, res, "Dog.speak").Kind)

	assert.True(t, hasRef(res, "./util", store.EdgeImports))
	assert.True(t, hasRef(res, "Animal", store.EdgeInherits))
	assert.True(t, hasRef(res, "greet", store.EdgeCalls))
}

func TestParseJava(t *testing.T) {
	src := `package com.example;

import java.util.List;

public class Engine extends Machine implements Startable {
    public void start() {
        prime();
    }

    private void prime() {
        new Spark();
    }
}
`
	res := parse(t, "java", src)

	engine := symbolByFQN(t, res, "Engine")
	assert.Equal(t, store.SymbolClass, engine.Kind)
	assert.Equal(t, store.SymbolMethod, symbolByFQN(t, res, "Engine.start").Kind)

	assert.True(t, hasRef(res, "java.util.List", store.EdgeImports))
	assert.True(t, hasRef(res, "Machine", store.EdgeInherits))
	assert.True(t, hasRef(res, "Startable", store.EdgeImplements))
	assert.True(t, hasRef(res, "prime", store.EdgeCalls))
	assert.True(t, hasRef(res, "Spark", store.EdgeCalls))
}

func TestParseC(t *testing.T) {
	src := `#include <stdio.h>
#include "local.h"

struct point { int x; int y; };

typedef struct point point_t;

int area(struct point p) {
    return compute(p.x, p.y);
}
`
	res := parse(t, "c", src)

	assert.Equal(t, store.SymbolStruct, symbolByFQN(t, res, "point").Kind)
	assert.Equal(t, store.SymbolTypedef, symbolByFQN(t, res, "point_t").Kind)
	assert.Equal(t, store.SymbolFunction, symbolByFQN(t, res, "area").Kind)

	assert.True(t, hasRef(res, "stdio.h", store.EdgeImports))
	assert.True(t, hasRef(res, "local.h", store.EdgeImports))
	assert.True(t, hasRef(res, "compute", store.EdgeCalls))
}

func TestParseSQL(t *testing.T) {
	src := `-- schema
CREATE TABLE users (
    id BIGINT PRIMARY KEY,
    name TEXT
);

CREATE OR REPLACE VIEW active_users AS
    SELECT * FROM users WHERE active;

CREATE INDEX users_name_idx ON users (name);

CREATE FUNCTION touch() RETURNS trigger AS $$ BEGIN END $$;

CREATE PROCEDURE cleanup() LANGUAGE SQL AS $$ DELETE FROM users $$;
`
	res := parse(t, "sql", src)

	users := symbolByFQN(t, res, "users")
	assert.Equal(t, store.SymbolTable, users.Kind)
	assert.Equal(t, 2, users.StartLine)
	assert.Equal(t, 5, users.EndLine)

	assert.Equal(t, store.SymbolView, symbolByFQN(t, res, "active_users").Kind)
	assert.Equal(t, store.SymbolIndex, symbolByFQN(t, res, "users_name_idx").Kind)
	assert.Equal(t, store.SymbolFunction, symbolByFQN(t, res, "touch").Kind)
	assert.Equal(t, store.SymbolProcedure, symbolByFQN(t, res, "cleanup").Kind)
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := New(nil)
	_, err := p.Parse(context.Background(), "x.rb", "ruby", []byte("def x; end"))
	require.Error(t, err)
	assert.True(t, p.Supported("python"))
	assert.True(t, p.Supported("sql"))
	assert.False(t, p.Supported("ruby"))
}

func TestParseBrokenSourceStillExtracts(t *testing.T) {
	src := "def ok():\n    pass\n\ndef broken(:\n"
	res := parse(t, "python", src)
	symbolByFQN(t, res, "ok")
}
