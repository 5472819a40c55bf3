package rules

import (
	"testing"

	"basecore/internal/domain"
)

var testIdentity = domain.Identity{
	UserID:    "u-1",
	Email:     "dev@example.com",
	Role:      "editor",
	AccountID: "acct-9",
}

func compile(t *testing.T, input string) (string, map[string]any) {
	t.Helper()
	expr, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	pred, params, err := CompileRule(expr, testIdentity)
	if err != nil {
		t.Fatalf("CompileRule(%q): %v", input, err)
	}
	return pred, params
}

func TestCompileBindsIdentityAndLiterals(t *testing.T) {
	pred, params := compile(t, "@request.auth.id = author_id && status = 'active'")

	want := `((:p0 = "author_id") AND ("status" = :p1))`
	if pred != want {
		t.Errorf("predicate = %q, want %q", pred, want)
	}
	if params["p0"] != "u-1" {
		t.Errorf("p0 = %v", params["p0"])
	}
	if params["p1"] != "active" {
		t.Errorf("p1 = %v", params["p1"])
	}
}

func TestCompileIdentityFields(t *testing.T) {
	cases := map[string]any{
		"@request.auth.id = x":         "u-1",
		"@request.auth.email = x":      "dev@example.com",
		"@request.auth.role = x":       "editor",
		"@request.auth.account_id = x": "acct-9",
		"user.id = x":                  "u-1",
		"user.email = x":               "dev@example.com",
	}
	for input, want := range cases {
		_, params := compile(t, input)
		if params["p0"] != want {
			t.Errorf("%q: p0 = %v, want %v", input, params["p0"], want)
		}
	}
}

func TestCompileRecordPaths(t *testing.T) {
	pred, _ := compile(t, "record.team_id = 'x'")
	if pred != `("team_id" = :p0)` {
		t.Errorf("predicate = %q", pred)
	}

	// Bare identifiers are record columns too.
	pred, _ = compile(t, "team_id = 'x'")
	if pred != `("team_id" = :p0)` {
		t.Errorf("predicate = %q", pred)
	}
}

func TestCompileLiteralKinds(t *testing.T) {
	pred, params := compile(t, "public = true && score > 4.5")
	if pred != `(("public" = :p0) AND ("score" > :p1))` {
		t.Errorf("predicate = %q", pred)
	}
	if params["p0"] != true {
		t.Errorf("p0 = %#v", params["p0"])
	}
	if params["p1"] != 4.5 {
		t.Errorf("p1 = %#v", params["p1"])
	}
}

func TestCompileOperators(t *testing.T) {
	cases := map[string]string{
		"a != 1": `("a" != :p0)`,
		"a < 1":  `("a" < :p0)`,
		"a <= 1": `("a" <= :p0)`,
		"a > 1":  `("a" > :p0)`,
		"a >= 1": `("a" >= :p0)`,
		"a == 1": `("a" = :p0)`,
	}
	for input, want := range cases {
		if pred, _ := compile(t, input); pred != want {
			t.Errorf("%q: predicate = %q, want %q", input, pred, want)
		}
	}
}

func TestCompileSharedParamsDoNotCollide(t *testing.T) {
	params := NewParams()

	first, err := Parse("status = 'active'")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Parse("@request.auth.id = author_id")
	if err != nil {
		t.Fatal(err)
	}

	p1, err := Compile(first, testIdentity, params)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Compile(second, testIdentity, params)
	if err != nil {
		t.Fatal(err)
	}

	if p1 != `("status" = :p0)` {
		t.Errorf("first = %q", p1)
	}
	if p2 != `(:p1 = "author_id")` {
		t.Errorf("second = %q", p2)
	}
	values := params.Values()
	if values["p0"] != "active" || values["p1"] != "u-1" {
		t.Errorf("values = %v", values)
	}
}

func TestCompileRejectsInvalidPaths(t *testing.T) {
	cases := []string{
		"@request.auth.password = 1",
		"@request.other.id = 1",
		"user.password = 1",
		"user.a.b = 1",
		"record.a.b = 1",
		"unknown.root.here = 1",
	}
	for _, input := range cases {
		expr, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		if _, _, err := CompileRule(expr, testIdentity); err == nil {
			t.Errorf("CompileRule(%q): expected error", input)
		}
	}
}

func TestCompileRejectsUnexpandedMacro(t *testing.T) {
	expr, err := Parse("@is_public")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := CompileRule(expr, testIdentity); err == nil {
		t.Fatal("expected error for unexpanded macro")
	}
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent = %q", got)
	}
}
