// Package matching attributes sales to funnels by product reference or by
// fuzzy product-name containment.
//
// Name matching normalizes both strings (NFC, lowercase, newlines and hyphen
// variants to spaces, collapsed whitespace), derives keywords from the
// product name only and requires every keyword to appear as a substring of
// the sale name. Tokens of two characters or fewer and the ignore-list below
// never become keywords. A product name with no keywords matches nothing.
package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// minKeywordLen is the shortest token kept as a keyword.
const minKeywordLen = 3

// ignoredTokens are too generic to identify a product.
var ignoredTokens = map[string]struct{}{
	"2023":  {},
	"2024":  {},
	"2025":  {},
	"2026":  {},
	"2027":  {},
	"2028":  {},
	"mba":   {},
	"ciclo": {},
}

var separators = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
	"-", " ",
	"\u2010", " ", // hyphen
	"\u2011", " ", // non-breaking hyphen
	"\u2012", " ", // figure dash
	"\u2013", " ", // en dash
	"\u2014", " ", // em dash
	"\u2212", " ", // minus sign
	"\u00a0", " ", // no-break space
)

// Normalize prepares a name for containment checks.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = separators.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Keywords returns the distinct tokens of a product name that must all be
// present in a sale name, in first-seen order.
func Keywords(productName string) []string {
	tokens := strings.Fields(Normalize(productName))
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minKeywordLen {
			continue
		}
		if _, ignored := ignoredTokens[tok]; ignored {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// MatchesProductName reports whether a sale name matches a product name.
func MatchesProductName(saleName, productName string) bool {
	return containsAll(Normalize(saleName), Keywords(productName))
}

func containsAll(normalizedSale string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(normalizedSale, kw) {
			return false
		}
	}
	return true
}

// Matcher holds a funnel's linked products, pre-tokenized.
type Matcher struct {
	productIDs map[string]struct{}
	keywordSet [][]string
}

// NewMatcher builds a matcher from linked product ids and free-text names.
// Names without keywords are dropped since they can never match.
func NewMatcher(productIDs, productNames []string) *Matcher {
	m := &Matcher{productIDs: make(map[string]struct{}, len(productIDs))}
	for _, id := range productIDs {
		m.productIDs[id] = struct{}{}
	}
	for _, name := range productNames {
		if kws := Keywords(name); len(kws) > 0 {
			m.keywordSet = append(m.keywordSet, kws)
		}
	}
	return m
}

// Empty reports whether nothing can ever match.
func (m *Matcher) Empty() bool {
	return len(m.productIDs) == 0 && len(m.keywordSet) == 0
}

// Matches reports whether a sale is attributed to the funnel.
func (m *Matcher) Matches(s domain.Sale) bool {
	if s.ProductID != nil {
		if _, ok := m.productIDs[*s.ProductID]; ok {
			return true
		}
	}
	if len(m.keywordSet) == 0 {
		return false
	}
	name := Normalize(s.ProductName)
	for _, kws := range m.keywordSet {
		if containsAll(name, kws) {
			return true
		}
	}
	return false
}

// Attribute sums the value and count of matching active sales.
func Attribute(sales []domain.Sale, m *Matcher) (float64, int) {
	total := decimal.Zero
	count := 0
	for _, s := range sales {
		if s.Status != domain.SaleActive || !m.Matches(s) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(s.TotalValue))
		count++
	}
	return total.InexactFloat64(), count
}

// Preview explains how each linked name is tokenized.
func Preview(productNames []string) []domain.MatchPreview {
	out := make([]domain.MatchPreview, 0, len(productNames))
	for _, name := range productNames {
		kws := Keywords(name)
		out = append(out, domain.MatchPreview{
			ProductName: name,
			Keywords:    kws,
			Matchable:   len(kws) > 0,
		})
	}
	return out
}
