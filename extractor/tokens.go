package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyRe matches display-formatted amounts: optional sign or accounting
// parentheses, optional currency symbol, thousands separators, two decimal
// places. Amounts without decimals are deliberately not matched; on banking
// pages they are usually counts or dates, not money.
var moneyRe = regexp.MustCompile(`\(?[-+]?\s?[$£€]?\s?\d+(?:,\d{3})*\.\d{2}\b\)?`)

// dateRe matches the date shapes commonly rendered in transaction tables:
// numeric d/m/y, ISO dates, and month-name forms. Dot-separated dates are
// not matched; they collide with decimal amounts.
var dateRe = regexp.MustCompile(
	`\b\d{4}-\d{2}-\d{2}\b` +
		`|\b\d{1,2}/\d{1,2}/\d{2,4}\b` +
		`|(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:,?\s+\d{4})?\b` +
		`|(?i)\b\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)

// ParseMoney converts one matched money token into a decimal value.
// Accounting parentheses negate; currency symbols, separators and spaces are
// stripped.
func ParseMoney(tok string) (decimal.Decimal, error) {
	s := strings.TrimSpace(tok)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "", "+", "").Replace(s)
	s = strings.TrimSpace(s)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", tok, err)
	}
	if neg {
		v = v.Neg()
	}
	return v, nil
}
