package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bankflow/extractor"
)

// HTTPImporter forwards extracted rows to the transaction import endpoint of
// the surrounding finance system as one JSON batch.
type HTTPImporter struct {
	url  string
	http *http.Client
}

func NewHTTPImporter(url string) *HTTPImporter {
	return &HTTPImporter{url: url, http: &http.Client{Timeout: 30 * time.Second}}
}

type importRequest struct {
	RecipeID string          `json:"recipe_id"`
	Rows     []extractor.Row `json:"rows"`
}

func (i *HTTPImporter) Import(ctx context.Context, recipeID string, rows []extractor.Row) error {
	body, err := json.Marshal(importRequest{RecipeID: recipeID, Rows: rows})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", i.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := i.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("import endpoint status %d", resp.StatusCode)
	}
	return nil
}
