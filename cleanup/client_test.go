package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"bankflow/extractor"
)

func sampleRows(n int) []extractor.Row {
	rows := make([]extractor.Row, n)
	for i := range rows {
		rows[i] = extractor.Row{
			Date:        fmt.Sprintf("01/%02d/2026", i%28+1),
			Description: fmt.Sprintf("POS 4421 MERCHANT-%d REF998", i),
			Amount:      decimal.RequireFromString("-4.50"),
			Confidence:  54,
		}
	}
	return rows
}

func TestCleanFailureReturnsInputUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", URL: srv.URL, Model: "m"})
	in := sampleRows(3)
	out := c.Clean(context.Background(), in)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("failed cleanup must pass rows through unchanged:\nin  %+v\nout %+v", in, out)
	}
}

func TestCleanGarbageOutputReturnsInputUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "sorry, I cannot help with that"})
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", URL: srv.URL, Model: "m"})
	in := sampleRows(2)
	out := c.Clean(context.Background(), in)
	if !reflect.DeepEqual(in, out) {
		t.Fatal("non-JSON model output must pass rows through unchanged")
	}
}

func TestCleanAppliesDescriptionAndCategoryOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		// Echo back one cleaned row that also (illegally) changes the amount.
		cleaned := `[{"date":"09/09/2099","description":"Merchant 0","amount":"999.99","category":"Dining","confidence":1}]`
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "Here you go:\n" + cleaned})
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", URL: srv.URL, Model: "m"})
	in := sampleRows(1)
	out := c.Clean(context.Background(), in)
	if len(out) != 1 {
		t.Fatalf("row count changed: %d", len(out))
	}
	if out[0].Description != "Merchant 0" || out[0].Category != "Dining" {
		t.Fatalf("cleaned fields not applied: %+v", out[0])
	}
	if out[0].Date != in[0].Date || !out[0].Amount.Equal(in[0].Amount) {
		t.Fatalf("model must not change date or amount: %+v", out[0])
	}
}

func TestCleanChunksAtTwenty(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", URL: srv.URL, Model: "m"})
	in := sampleRows(45)
	out := c.Clean(context.Background(), in)
	if requests != 3 {
		t.Fatalf("expected 3 chunked requests for 45 rows, got %d", requests)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatal("pass-through order broken")
	}
}

func TestCleanDisabledPassesThrough(t *testing.T) {
	c := NewClient(Config{})
	in := sampleRows(2)
	if out := c.Clean(context.Background(), in); !reflect.DeepEqual(in, out) {
		t.Fatal("disabled adapter must be the identity")
	}
}
