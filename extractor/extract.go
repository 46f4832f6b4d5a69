// Package extractor mines the final replayed page for transaction-shaped
// rows. It scores repeating element groups for transaction-row likelihood and
// extracts structured rows from the single highest-confidence group. The
// heuristic is best-effort: sites whose markup does not resemble the expected
// patterns simply yield nothing, and that is preferred over piling on rules
// that misfire on pagination bars and navigation menus.
package extractor

import (
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// Row is one extracted transaction candidate, handed to the import boundary.
type Row struct {
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	Category    string           `json:"category,omitempty"`
	Confidence  float64          `json:"confidence"`
}

// Key is the composite identity used for pre-import dedup.
func (r Row) Key() string {
	return r.Date + "|" + strings.ToLower(strings.TrimSpace(r.Description)) + "|" + r.Amount.String()
}

// Result carries the extracted rows plus the winning pattern's confidence.
type Result struct {
	Rows       []Row   `json:"rows"`
	Confidence float64 `json:"confidence"`
}

const (
	scoreMoneyToken   = 10
	scoreMoneyPair    = 5
	scoreDateToken    = 15
	scoreStrongClass  = 8 // transaction / activity / payment
	scoreWeakClass    = 4 // amount / row / item
	minFirstChild     = 20
	maxVariance       = 100.0
	minGenericKids    = 3
	maxConfidence     = 100.0
)

var strongClassHints = []string{"transaction", "activity", "payment"}
var weakClassHints = []string{"amount", "row", "item"}

// Extract parses the final page HTML and returns the best pattern's rows.
// An empty result is not an error; it means no group looked like
// transactions.
func Extract(pageHTML string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var best *pattern
	for _, c := range candidateContainers(doc) {
		p := scoreContainer(c)
		if p == nil {
			continue
		}
		if best == nil || p.confidence > best.confidence {
			best = p
		}
	}
	if best == nil {
		return &Result{Rows: []Row{}}, nil
	}
	log.Printf("📊 [Extractor] pattern <%s> children=%d confidence=%.1f", best.node.Data, len(best.children), best.confidence)

	rows := make([]Row, 0, len(best.children))
	seen := make(map[string]bool)
	for _, child := range best.children {
		row, ok := extractRow(child, best.confidence)
		if !ok {
			continue
		}
		// Pending transactions are excluded by policy, matching the
		// settled-only treatment used at the import boundary.
		if strings.Contains(strings.ToLower(row.Description), "pending") {
			continue
		}
		if seen[row.Key()] {
			continue
		}
		seen[row.Key()] = true
		rows = append(rows, row)
	}
	return &Result{Rows: rows, Confidence: best.confidence}, nil
}

type pattern struct {
	node       *html.Node
	children   []*html.Node
	confidence float64
}

// candidateContainers enumerates table bodies, lists, and any element with
// enough element children to plausibly repeat a template.
func candidateContainers(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			kids := elementChildren(n)
			switch n.Data {
			case "tbody", "ul", "ol":
				if len(kids) >= 2 {
					out = append(out, n)
				}
			default:
				if len(kids) >= minGenericKids {
					out = append(out, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// scoreContainer scores every child and applies the pattern gate: the first
// child must look transaction-like on its own, and low score variance across
// siblings is the signal that they share a template rather than being
// incidental page furniture.
func scoreContainer(n *html.Node) *pattern {
	children := elementChildren(n)
	if len(children) == 0 {
		return nil
	}
	scores := make([]float64, len(children))
	for i, c := range children {
		scores[i] = scoreChild(c)
	}
	if scores[0] < minFirstChild {
		return nil
	}
	mean, variance := meanVariance(scores)
	if variance >= maxVariance {
		return nil
	}
	conf := mean + (maxVariance-variance)/10
	if conf > maxConfidence {
		conf = maxConfidence
	}
	return &pattern{node: n, children: children, confidence: conf}
}

func scoreChild(n *html.Node) float64 {
	text := textContent(n)
	score := 0.0
	money := moneyRe.FindAllString(text, -1)
	score += float64(len(money)) * scoreMoneyToken
	if len(money) >= 2 {
		score += scoreMoneyPair
	}
	if dateRe.MatchString(text) {
		score += scoreDateToken
	}
	classID := strings.ToLower(attrValue(n, "class") + " " + attrValue(n, "id"))
	for _, hint := range strongClassHints {
		if strings.Contains(classID, hint) {
			score += scoreStrongClass
		}
	}
	for _, hint := range weakClassHints {
		if strings.Contains(classID, hint) {
			score += scoreWeakClass
		}
	}
	return score
}

func meanVariance(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs))
}

// extractRow classifies a single pattern child. Table rows get per-cell
// classification; anything else falls back to scanning its text nodes with
// the same per-token rules. Rows missing both a date and an amount are
// discarded.
func extractRow(n *html.Node, confidence float64) (Row, bool) {
	var (
		date    string
		desc    []string
		amount  *decimal.Decimal
		balance *decimal.Decimal
	)

	classify := func(text, class string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if tok := moneyRe.FindString(text); tok != "" {
			v, err := ParseMoney(tok)
			if err == nil {
				switch {
				case strings.Contains(strings.ToLower(class), "balance"):
					balance = &v
				case amount == nil:
					amount = &v
				case balance == nil:
					// Two unlabelled money tokens: the second is the
					// running balance.
					balance = &v
				}
				rest := strings.TrimSpace(strings.Replace(text, tok, "", 1))
				if rest != "" && dateRe.MatchString(rest) && date == "" {
					date = dateRe.FindString(rest)
				}
				return
			}
		}
		if date == "" && dateRe.MatchString(text) {
			date = dateRe.FindString(text)
			return
		}
		desc = append(desc, text)
	}

	if n.Data == "tr" {
		for _, cell := range elementChildren(n) {
			if cell.Data != "td" && cell.Data != "th" {
				continue
			}
			classify(textContent(cell), attrValue(cell, "class"))
		}
	} else {
		var walkText func(node *html.Node, class string)
		walkText = func(node *html.Node, class string) {
			if node.Type == html.TextNode {
				classify(node.Data, class)
				return
			}
			cls := class
			if node.Type == html.ElementNode {
				cls = attrValue(node, "class")
			}
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				walkText(c, cls)
			}
		}
		walkText(n, attrValue(n, "class"))
	}

	if date == "" && amount == nil {
		return Row{}, false
	}
	row := Row{
		Date:        date,
		Description: strings.Join(desc, " "),
		Balance:     balance,
		Confidence:  confidence,
	}
	if amount != nil {
		row.Amount = *amount
	}
	return row, true
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
		b.WriteString(" ")
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func attrValue(n *html.Node, key string) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
