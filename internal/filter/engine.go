// Package filter implements the automated exclusion rules applied to newly
// discovered papers. Automation only narrows the candidate set: a paper is
// either excluded outright or left for human review, never included.
package filter

import (
	"fmt"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
)

// Verdict is the outcome of classifying a paper.
type Verdict string

const (
	// VerdictAutoExclude marks the paper for automated exclusion.
	VerdictAutoExclude Verdict = "auto_exclude"
	// VerdictForReview leaves the paper pending for a human decision.
	VerdictForReview Verdict = "for_review"
)

// Rule names the criterion that decided a verdict.
type Rule string

const (
	RuleNone                 Rule = ""
	RuleExcludedKeyword      Rule = "excluded_keyword"
	RuleYear                 Rule = "year"
	RuleCitations            Rule = "citations"
	RuleInfluentialCitations Rule = "influential_citations"
	RuleRequiredKeyword      Rule = "required_keyword"
)

// Decision is a verdict together with the rule that produced it.
type Decision struct {
	Verdict Verdict
	Rule    Rule
	Reason  string
}

// Excluded returns true if the decision is an automated exclusion.
func (d Decision) Excluded() bool {
	return d.Verdict == VerdictAutoExclude
}

// Classify evaluates the criteria against a paper in fixed order; the first
// matching rule wins:
//  1. an excluded keyword in the title or abstract
//  2. a year outside [MinYear, MaxYear]
//  3. a citation count below MinCitations or above MaxCitations
//  4. an influential citation count below MinInfluentialCitations
//  5. none of the required keywords in the title or abstract
//
// Bounds are inclusive. Missing metadata never triggers a rule.
func Classify(p *domain.Paper, criteria domain.FilterCriteria) Decision {
	text := strings.ToLower(p.Title + "\n" + p.Abstract)

	if kw, ok := firstMatch(text, criteria.ExcludedKeywords); ok {
		return exclude(RuleExcludedKeyword, "contains excluded keyword %q", kw)
	}

	if p.Year != nil {
		year := *p.Year
		if criteria.MinYear != nil && year < *criteria.MinYear {
			return exclude(RuleYear, "year %d before %d", year, *criteria.MinYear)
		}
		if criteria.MaxYear != nil && year > *criteria.MaxYear {
			return exclude(RuleYear, "year %d after %d", year, *criteria.MaxYear)
		}
	}

	if p.CitationCount != nil {
		count := *p.CitationCount
		if criteria.MinCitations != nil && count < *criteria.MinCitations {
			return exclude(RuleCitations, "%d citations below minimum %d", count, *criteria.MinCitations)
		}
		if criteria.MaxCitations != nil && count > *criteria.MaxCitations {
			return exclude(RuleCitations, "%d citations above maximum %d", count, *criteria.MaxCitations)
		}
	}

	if p.InfluentialCitationCount != nil && criteria.MinInfluentialCitations != nil {
		count := *p.InfluentialCitationCount
		if count < *criteria.MinInfluentialCitations {
			return exclude(RuleInfluentialCitations, "%d influential citations below minimum %d",
				count, *criteria.MinInfluentialCitations)
		}
	}

	if hasTerms(criteria.Keywords) {
		if _, ok := firstMatch(text, criteria.Keywords); !ok {
			return exclude(RuleRequiredKeyword, "none of the required keywords %s present",
				strings.Join(criteria.Keywords, ", "))
		}
	}

	return Decision{Verdict: VerdictForReview}
}

func exclude(rule Rule, format string, args ...any) Decision {
	return Decision{
		Verdict: VerdictAutoExclude,
		Rule:    rule,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// firstMatch returns the first keyword contained in the lower-cased text.
// Blank keywords are ignored.
func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) {
			return kw, true
		}
	}
	return "", false
}

func hasTerms(keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}
