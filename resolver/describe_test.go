package resolver

import (
	"strings"
	"testing"
	"unicode/utf8"

	"bankflow/recipes"
)

func TestDescribeFormControlLadder(t *testing.T) {
	// Unique name wins.
	d := Describe(CapturedElement{Tag: "input", Name: "username", NameMatches: 1, Placeholder: "Email"})
	if d.Strategy != recipes.StrategySemantic || d.Selector != `input[name="username"]` {
		t.Fatalf("unique name: got %+v", d)
	}

	// Duplicated name falls through to placeholder.
	d = Describe(CapturedElement{Tag: "input", Name: "q", NameMatches: 3, Placeholder: "Search transactions"})
	if d.Selector != `input[placeholder="Search transactions"]` {
		t.Fatalf("placeholder fallback: got %+v", d)
	}

	// Then aria-label.
	d = Describe(CapturedElement{Tag: "input", AriaLabel: "Sort code"})
	if d.Selector != `input[aria-label="Sort code"]` {
		t.Fatalf("aria fallback: got %+v", d)
	}

	// Then associated label text.
	d = Describe(CapturedElement{Tag: "input", LabelText: "Memorable word"})
	if d.Strategy != recipes.StrategySemantic || d.Label != "Memorable word" || d.Selector != "" {
		t.Fatalf("label fallback: got %+v", d)
	}
}

func TestDescribeClickableTextIdentity(t *testing.T) {
	d := Describe(CapturedElement{
		Tag:     "button",
		Text:    "  Sign in  ",
		Classes: []string{"css-1x9a8b7c", "flex", "login-submit"},
	})
	if d.Strategy != recipes.StrategyText {
		t.Fatalf("strategy: got %+v", d)
	}
	if d.Text != "Sign in" {
		t.Fatalf("text not trimmed: %q", d.Text)
	}
	if d.ClassHint != "login-submit" {
		t.Fatalf("class hint skipped noise classes wrong: %q", d.ClassHint)
	}
}

func TestDescribeClickableTextCap(t *testing.T) {
	long := strings.Repeat("x", 250)
	d := Describe(CapturedElement{Tag: "a", Text: long})
	if len(d.Text) != 100 {
		t.Fatalf("text cap: got %d chars", len(d.Text))
	}
}

func TestDescribeClickableTextCapMultibyte(t *testing.T) {
	// The cap counts runes, never bytes, so multibyte link text truncates
	// cleanly and stays comparable against live page text at replay time.
	long := strings.Repeat("振込先口座へ送金する", 15) // 150 runes, 3 bytes each
	d := Describe(CapturedElement{Tag: "a", Text: long})
	if got := utf8.RuneCountInString(d.Text); got != 100 {
		t.Fatalf("rune cap: got %d runes", got)
	}
	if !utf8.ValidString(d.Text) {
		t.Fatalf("truncation split a rune: %q", d.Text)
	}
	if !strings.HasPrefix(long, d.Text) {
		t.Fatalf("truncated text is not a prefix of the original")
	}
}

func TestDescribeStructuralFallback(t *testing.T) {
	d := Describe(CapturedElement{
		Tag:     "div",
		Classes: []string{"txn-cell"},
		Ancestors: []AncestorInfo{
			{Tag: "tr", Classes: []string{"txn-row"}},
			{Tag: "tbody"},
			{Tag: "table", ID: "activity"},
			{Tag: "main"}, // beyond three levels, dropped
		},
	})
	if d.Strategy != recipes.StrategyStructural {
		t.Fatalf("strategy: got %+v", d)
	}
	want := "table#activity > tbody > tr.txn-row > div.txn-cell"
	if d.Selector != want {
		t.Fatalf("path: got %q want %q", d.Selector, want)
	}
}

func TestDescribeRejectsDynamicIDs(t *testing.T) {
	d := Describe(CapturedElement{
		Tag: "div",
		ID:  "e5f6a7b8c9d0",
		Ancestors: []AncestorInfo{
			{Tag: "section", ID: "9c858901-8a57-4791-81fe-4c455b099bc9"},
			{Tag: "div", ID: "ts-1700000000123"},
		},
	})
	// Every anchor was dynamic, so no structural path survives.
	if d.Strategy != recipes.StrategyNone {
		t.Fatalf("expected coordinate-only descriptor, got %+v", d)
	}
}

func TestDynamicID(t *testing.T) {
	for id, want := range map[string]bool{
		"login-form":    false,
		"nav":           false,
		"deadbeef1234":  true,
		"1700000000123": true,
		"9c858901-8a57-4791-81fe-4c455b099bc9": true,
	} {
		if got := DynamicID(id); got != want {
			t.Errorf("DynamicID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestSensitiveDetection(t *testing.T) {
	cases := []struct {
		el   CapturedElement
		want bool
	}{
		{CapturedElement{Tag: "input", Type: "password"}, true},
		{CapturedElement{Tag: "input", Name: "user_PIN"}, true},
		{CapturedElement{Tag: "input", Placeholder: "Password"}, true},
		{CapturedElement{Tag: "input", Name: "username"}, false},
	}
	for _, c := range cases {
		if got := Sensitive(c.el); got != c.want {
			t.Errorf("Sensitive(%+v) = %v, want %v", c.el, got, c.want)
		}
	}
}

func TestFieldLabelPreference(t *testing.T) {
	el := CapturedElement{Tag: "input", Name: "acct", Placeholder: "Account number", LabelText: "Account"}
	if got := FieldLabel(el); got != "Account" {
		t.Fatalf("label preference: got %q", got)
	}
}
