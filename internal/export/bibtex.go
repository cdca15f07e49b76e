package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/helixir/snowball-review/internal/domain"
)

var keyStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "on": {}, "of": {}, "for": {}, "in": {},
	"and": {}, "to": {}, "with": {}, "from": {}, "by": {}, "at": {}, "is": {},
}

// WriteBibTeX writes one entry per paper in the given order. Papers with a
// venue become @article entries, the rest @misc.
func WriteBibTeX(w io.Writer, papers []*domain.Paper) error {
	bw := bufio.NewWriter(w)
	keys := newKeySet()
	for i, p := range papers {
		if i > 0 {
			bw.WriteString("\n")
		}
		writeEntry(bw, keys.next(CiteKey(p)), p)
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, key string, p *domain.Paper) {
	kind := "misc"
	if p.Venue.Name != "" {
		kind = "article"
	}
	fmt.Fprintf(w, "@%s{%s,\n", kind, key)

	field := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(w, "  %s = {%s},\n", name, escapeBibTeX(value))
		}
	}

	field("title", p.Title)
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			names = append(names, name)
		}
	}
	field("author", strings.Join(names, " and "))
	if year := paperYear(p); year > 0 {
		field("year", strconv.Itoa(year))
	}
	if kind == "article" {
		field("journal", p.Venue.Name)
		field("volume", p.Venue.Volume)
		field("number", p.Venue.Issue)
		field("pages", p.Venue.Pages)
	}
	field("doi", p.DOI)
	if p.ArxivID != "" {
		field("eprint", p.ArxivID)
		field("archivePrefix", "arXiv")
	}
	field("url", p.URL)
	field("abstract", p.Abstract)
	if len(p.Tags) > 0 {
		field("keywords", strings.Join(p.Tags, ", "))
	}
	field("note", p.Notes)
	w.WriteString("}\n")
}

func paperYear(p *domain.Paper) int {
	if p.Year != nil {
		return *p.Year
	}
	if p.Venue.Year != nil {
		return *p.Venue.Year
	}
	return 0
}

var bibReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
	"\r\n", " ",
	"\n", " ",
)

func escapeBibTeX(s string) string {
	return bibReplacer.Replace(s)
}

// CiteKey builds the base key surnameYEARword from the first author's
// surname, the year and the first significant title word, folded to ASCII.
func CiteKey(p *domain.Paper) string {
	surname := "anon"
	if len(p.Authors) > 0 {
		if s := asciiWord(surnameOf(p.Authors[0].Name)); s != "" {
			surname = s
		}
	}

	year := "nd"
	if y := paperYear(p); y > 0 {
		year = strconv.Itoa(y)
	}

	word := ""
	for _, w := range strings.Fields(p.Title) {
		w = asciiWord(w)
		if w == "" {
			continue
		}
		if _, stop := keyStopWords[w]; stop {
			continue
		}
		word = w
		break
	}
	return surname + year + word
}

func surnameOf(name string) string {
	name = strings.TrimSpace(name)
	if before, _, ok := strings.Cut(name, ","); ok {
		return before
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// asciiWord strips diacritics and keeps lower-case ASCII letters and digits.
func asciiWord(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var sb strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// keySet disambiguates repeated keys with letter suffixes: the second
// occurrence of smith2020 becomes smith2020a, the third smith2020b.
type keySet struct {
	used map[string]struct{}
}

func newKeySet() *keySet {
	return &keySet{used: make(map[string]struct{})}
}

func (k *keySet) next(base string) string {
	if _, taken := k.used[base]; !taken {
		k.used[base] = struct{}{}
		return base
	}
	for n := 0; ; n++ {
		candidate := base + suffix(n)
		if _, taken := k.used[candidate]; !taken {
			k.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// suffix maps 0, 1, ..., 25, 26 to a, b, ..., z, aa.
func suffix(n int) string {
	var b []byte
	for {
		b = append([]byte{byte('a' + n%26)}, b...)
		n = n/26 - 1
		if n < 0 {
			return string(b)
		}
	}
}
