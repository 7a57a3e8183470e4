package lexer

import (
	"testing"

	"graphlite/internal/gqlerr"
)

func TestNextTokensBasicQuery(t *testing.T) {
	src := "MATCH (a:Person)-[r:KNOWS]->(b) WHERE a.age > 30 RETURN a.name"
	toks, err := New(src).All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Type{
		MATCH, LPAREN, IDENT, COLON, IDENT, RPAREN, DASH, LBRACKET, IDENT, COLON, IDENT, RBRACKET, ARROW_R,
		LPAREN, IDENT, RPAREN, WHERE, IDENT, DOT, IDENT, GT, INT, RETURN, IDENT, DOT, IDENT, EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Type, w)
		}
	}
}

func TestStringLiteralWithEscapes(t *testing.T) {
	toks, err := New(`'it\'s a \\test\\'`).All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != STRING || toks[0].Lit != `it's a \test\` {
		t.Fatalf("got %q", toks[0].Lit)
	}
}

func TestQuotedIdentifier(t *testing.T) {
	toks, err := New("`my graph`").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != QUOTED_ID || toks[0].Lit != "my graph" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	toks, err := New("match RETURN MaTcH").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range toks[:3] {
		if tok.Type != MATCH && tok.Type != RETURN {
			t.Errorf("expected keyword, got %s", tok.Type)
		}
	}
}

func TestLineComment(t *testing.T) {
	toks, err := New("RETURN 1 -- trailing comment\n, 2").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Type{RETURN, INT, COMMA, INT, EOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Fatalf("token %d: got %s, want %s", i, toks[i].Type, w)
		}
	}
}

func TestUnterminatedStringReportsLocation(t *testing.T) {
	_, err := New("RETURN 'abc").All()
	if err == nil {
		t.Fatal("expected error")
	}
	ge, ok := err.(*gqlerr.Error)
	if !ok || ge.Location.Line != 1 || ge.Location.Column != 8 {
		t.Fatalf("got %v, want an error located at line 1, column 8", err)
	}
}

func TestFloatLiteral(t *testing.T) {
	toks, err := New("3.14").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != FLOAT || toks[0].Lit != "3.14" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestParamToken(t *testing.T) {
	toks, err := New("$name").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Type != PARAM || toks[0].Lit != "name" {
		t.Fatalf("got %+v", toks[0])
	}
}
