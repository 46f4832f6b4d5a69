package extractor

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const transactionsPage = `<html><body>
<nav><ul id="menu">
  <li><a href="/home">Home</a></li>
  <li><a href="/accounts">Accounts</a></li>
  <li><a href="/help">Help</a></li>
  <li><a href="/logout">Log out</a></li>
</ul></nav>
<table class="transaction-history"><tbody>
  <tr class="txn-row"><td>01/02/2026</td><td>COFFEE SHOP</td><td class="amount">-4.50</td><td class="balance">1,234.56</td></tr>
  <tr class="txn-row"><td>01/03/2026</td><td>GROCERY STORE</td><td class="amount">-82.19</td><td class="balance">1,152.37</td></tr>
  <tr class="txn-row"><td>01/05/2026</td><td>SALARY</td><td class="amount">2,500.00</td><td class="balance">3,652.37</td></tr>
  <tr class="txn-row"><td>01/06/2026</td><td>RENT</td><td class="amount">-1,200.00</td><td class="balance">2,452.37</td></tr>
  <tr class="txn-row"><td>01/07/2026</td><td>TRANSFER</td><td class="amount">-100.00</td><td class="balance">2,352.37</td></tr>
</tbody></table>
<footer><div>Terms</div><div>Privacy</div><div>Contact</div></footer>
</body></html>`

func TestExtractTableRows(t *testing.T) {
	res, err := Extract(transactionsPage)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d: %+v", len(res.Rows), res.Rows)
	}
	for _, r := range res.Rows {
		if strings.Contains(r.Description, "Home") || strings.Contains(r.Description, "Privacy") {
			t.Fatalf("boilerplate leaked into rows: %+v", r)
		}
	}
	first := res.Rows[0]
	if first.Date != "01/02/2026" {
		t.Errorf("date: got %q", first.Date)
	}
	if first.Description != "COFFEE SHOP" {
		t.Errorf("description: got %q", first.Description)
	}
	if !first.Amount.Equal(decimal.RequireFromString("-4.50")) {
		t.Errorf("amount: got %s", first.Amount)
	}
	if first.Balance == nil || !first.Balance.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("balance: got %v", first.Balance)
	}
	if first.Confidence <= 0 || first.Confidence > 100 {
		t.Errorf("confidence out of range: %f", first.Confidence)
	}
}

func TestExtractExcludesPending(t *testing.T) {
	page := `<html><body><table><tbody>
<tr><td>01/02/2026</td><td>Pending card purchase</td><td>-9.99</td></tr>
<tr><td>01/02/2026</td><td>SETTLED PURCHASE</td><td>-19.99</td></tr>
<tr><td>01/03/2026</td><td>ANOTHER PURCHASE</td><td>-29.99</td></tr>
</tbody></table></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("pending row must be excluded, got %+v", res.Rows)
	}
	for _, r := range res.Rows {
		if strings.Contains(strings.ToLower(r.Description), "pending") {
			t.Fatalf("pending row leaked: %+v", r)
		}
	}
}

func TestExtractDeduplicates(t *testing.T) {
	page := `<html><body><table><tbody>
<tr><td>01/02/2026</td><td>COFFEE</td><td>-4.50</td></tr>
<tr><td>01/02/2026</td><td>COFFEE</td><td>-4.50</td></tr>
<tr><td>01/03/2026</td><td>LUNCH</td><td>-12.00</td></tr>
</tbody></table></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("duplicate (date, description, amount) must collapse, got %+v", res.Rows)
	}
}

func TestExtractNonTablePattern(t *testing.T) {
	page := `<html><body><div class="activity-feed">
<div class="activity-item"><span>Jan 5, 2026</span><span>Coffee Shop</span><span>$4.50</span></div>
<div class="activity-item"><span>Jan 6, 2026</span><span>Book Store</span><span>$22.00</span></div>
<div class="activity-item"><span>Jan 7, 2026</span><span>Grocery</span><span>$61.35</span></div>
</div></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows from list markup, got %+v", res.Rows)
	}
	if res.Rows[1].Description != "Book Store" {
		t.Errorf("description: got %q", res.Rows[1].Description)
	}
	if !res.Rows[0].Amount.Equal(decimal.RequireFromString("4.50")) {
		t.Errorf("amount: got %s", res.Rows[0].Amount)
	}
}

func TestExtractShortTableQualifies(t *testing.T) {
	// Row-shaped tags (tbody, ul, ol) qualify from two children; a statement
	// with only two settled transactions still extracts.
	page := `<html><body><table><tbody>
<tr><td>01/02/2026</td><td>COFFEE</td><td>-4.50</td></tr>
<tr><td>01/03/2026</td><td>LUNCH</td><td>-12.00</td></tr>
</tbody></table></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("two-row table must extract, got %+v", res.Rows)
	}
}

func TestExtractShortGenericContainerRejected(t *testing.T) {
	// Generic containers need three children before they count as repeating;
	// two similar divs are not enough signal.
	page := `<html><body><div>
<div>01/02/2026 COFFEE -4.50</div>
<div>01/03/2026 LUNCH -12.00</div>
</div></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("two-child generic container must not qualify, got %+v", res.Rows)
	}
}

func TestExtractRejectsHighVariance(t *testing.T) {
	// One money-dense child among unrelated siblings is page furniture, not
	// a repeating template.
	page := `<html><body><div>
<div>01/02/2026 one 4.50 two 9.99 three 12.00 transaction payment activity</div>
<div>plain text</div>
<div>more plain text</div>
</div></body></html>`
	res, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("high-variance container must not qualify, got %+v", res.Rows)
	}
}

func TestExtractNothingOnEmptyPage(t *testing.T) {
	res, err := Extract("<html><body><p>hello</p></body></html>")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected no rows, got %+v", res.Rows)
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]string{
		"$1,234.56":  "1234.56",
		"-4.50":      "-4.50",
		"(12.00)":    "-12.00",
		"£ 99.99":    "99.99",
		"+2,500.00":  "2500.00",
	}
	for tok, want := range cases {
		v, err := ParseMoney(tok)
		if err != nil {
			t.Errorf("ParseMoney(%q): %v", tok, err)
			continue
		}
		if !v.Equal(decimal.RequireFromString(want)) {
			t.Errorf("ParseMoney(%q) = %s, want %s", tok, v, want)
		}
	}
}
