package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// SparseQuery is the keyword representation of a query: surviving terms
// with their frequency weights. The keyword index consumes it both for
// matching and for sparse scoring.
type SparseQuery struct {
	Terms map[string]float64
}

// IsEmpty reports whether no searchable terms survived normalization.
func (q SparseQuery) IsEmpty() bool {
	return len(q.Terms) == 0
}

// OrderedTerms returns the terms in deterministic (lexicographic) order.
func (q SparseQuery) OrderedTerms() []string {
	terms := make([]string, 0, len(q.Terms))
	for term := range q.Terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Customer-service traffic is largely Portuguese with some English mixed
// in, so both stopword sets apply.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "em": {},
	"no": {}, "na": {}, "nos": {}, "nas": {}, "por": {}, "para": {},
	"com": {}, "sem": {}, "que": {}, "qual": {}, "quais": {}, "como": {},
	"e": {}, "ou": {}, "mas": {}, "se": {}, "ser": {}, "ter": {},
	"the": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "and": {}, "or": {}, "is": {}, "are": {}, "what": {},
	"how": {}, "my": {}, "i": {},
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// BuildSparseQuery normalizes query text into its keyword representation:
// lowercased, accent-folded, punctuation-split, stopword-trimmed terms
// weighted by frequency.
func BuildSparseQuery(text string) SparseQuery {
	terms := make(map[string]float64)

	folded := accentFolder.Replace(strings.ToLower(text))
	for _, token := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(token) < 2 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		terms[token]++
	}

	return SparseQuery{Terms: terms}
}
