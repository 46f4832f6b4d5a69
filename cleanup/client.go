// Package cleanup is the optional LLM post-processing pass over extracted
// rows. It is a pure rows -> rows function by contract: any failure, from a
// dead endpoint to malformed model output, returns the input unchanged. The
// pipeline must keep working with the adapter entirely unavailable.
package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"bankflow/extractor"
)

// DefaultChunkSize bounds rows per request to respect payload limits.
const DefaultChunkSize = 20

type Config struct {
	Provider  string // "ollama" | "openai"; empty disables the adapter
	URL       string
	Model     string
	APIKey    string
	Timeout   time.Duration
	ChunkSize int
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Provider != "" && c.cfg.URL != ""
}

// Clean normalizes descriptions and fills categories in chunks. Failed
// chunks pass through unchanged; dates, amounts and balances are never
// adopted from model output.
func (c *Client) Clean(ctx context.Context, rows []extractor.Row) []extractor.Row {
	if !c.Enabled() || len(rows) == 0 {
		return rows
	}
	out := make([]extractor.Row, 0, len(rows))
	for start := 0; start < len(rows); start += c.cfg.ChunkSize {
		end := start + c.cfg.ChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		cleaned, err := c.cleanChunk(ctx, chunk)
		if err != nil {
			log.Printf("⚠️  [Cleanup] chunk %d-%d passed through: %v", start, end, err)
			out = append(out, chunk...)
			continue
		}
		out = append(out, cleaned...)
	}
	return out
}

func (c *Client) cleanChunk(ctx context.Context, chunk []extractor.Row) ([]extractor.Row, error) {
	b, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You are cleaning bank transaction rows extracted from a web page.
For each row: tidy the description into plain readable text (strip reference codes and repeated whitespace) and fill the category field with a short spending category.
Do not change date, amount or balance. Return ONLY a JSON array with exactly %d objects in the same order and the same fields.

%s`, len(chunk), string(b))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	arr := extractJSONArray(raw)
	if arr == "" {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	var cleaned []extractor.Row
	if err := json.Unmarshal([]byte(arr), &cleaned); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if len(cleaned) != len(chunk) {
		return nil, fmt.Errorf("model returned %d rows for %d inputs", len(cleaned), len(chunk))
	}
	// Adopt only the fields the model is allowed to touch.
	out := make([]extractor.Row, len(chunk))
	for i := range chunk {
		out[i] = chunk[i]
		if d := strings.TrimSpace(cleaned[i].Description); d != "" {
			out[i].Description = d
		}
		if cat := strings.TrimSpace(cleaned[i].Category); cat != "" {
			out[i].Category = cat
		}
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	switch c.cfg.Provider {
	case "ollama":
		return c.completeOllama(ctx, prompt)
	case "openai":
		return c.completeOpenAI(ctx, prompt)
	}
	return "", fmt.Errorf("unknown provider %q", c.cfg.Provider)
}

func (c *Client) completeOllama(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(c.cfg.URL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(c.cfg.URL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai status %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return out.Choices[0].Message.Content, nil
}

// extractJSONArray pulls the first top-level JSON array out of model chatter.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
