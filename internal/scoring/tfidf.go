package scoring

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/helixir/snowball-review/internal/domain"
)

// stopWords are dropped before weighting.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing down during each few for from
		further had has have having he her here hers him his how i if in into is it its itself just me more most
		my no nor not now of off on once only or other our ours out over own same she should so some such than
		that the their theirs them then there these they this those through to too under until up very was we
		were what when where which while who whom why will with would you your yours`) {
		stopWords[w] = struct{}{}
	}
}

// TFIDFScorer scores papers by cosine similarity between TF-IDF vectors of
// the query and of each paper's title and abstract. The corpus is the query
// plus the papers being scored. It needs no network access.
type TFIDFScorer struct{}

var _ Scorer = TFIDFScorer{}

// NewTFIDFScorer creates a TF-IDF scorer.
func NewTFIDFScorer() TFIDFScorer {
	return TFIDFScorer{}
}

// Method returns "tfidf".
func (TFIDFScorer) Method() string { return MethodTFIDF }

// ScorePapers scores every paper against query.
func (TFIDFScorer) ScorePapers(_ context.Context, query string, papers []*domain.Paper, progress ProgressFunc) []Scored {
	if len(papers) == 0 {
		report(progress, 0, 0)
		return []Scored{}
	}

	docs := make([][]string, 0, len(papers)+1)
	docs = append(docs, Tokenize(query))
	for _, p := range papers {
		docs = append(docs, Tokenize(paperText(p)))
	}

	idf := inverseDocumentFrequency(docs)
	queryVec := weigh(docs[0], idf)

	out := make([]Scored, len(papers))
	for i, p := range papers {
		out[i] = Scored{Paper: p, Score: clamp(cosine(queryVec, weigh(docs[i+1], idf)))}
		report(progress, i+1, len(papers))
	}
	return out
}

// Tokenize lower-cases text, splits it on non-alphanumeric runes and drops
// stop words and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// inverseDocumentFrequency uses smoothed idf: ln((1+n)/(1+df)) + 1.
func inverseDocumentFrequency(docs [][]string) map[string]float64 {
	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]struct{}{}
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for tok, count := range df {
		idf[tok] = math.Log((1+n)/(1+float64(count))) + 1
	}
	return idf
}

func weigh(doc []string, idf map[string]float64) map[string]float64 {
	vec := make(map[string]float64, len(doc))
	for _, tok := range doc {
		vec[tok]++
	}
	for tok, tf := range vec {
		vec[tok] = tf * idf[tok]
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for tok, wa := range a {
		na += wa * wa
		if wb, ok := b[tok]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		nb += wb * wb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
