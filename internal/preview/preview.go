package preview

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const DefaultExcerptRunes = 280

// Summary is a plain-text digest of a campaign description, which may be
// plain text or HTML produced by a rich text editor.
type Summary struct {
	Excerpt   string   `json:"excerpt"`
	Words     int      `json:"words"`
	Links     []string `json:"links,omitempty"`
	LangGuess string   `json:"lang_guess"`
}

// Summarize strips markup from description and cuts the text to at most
// maxRunes runes on a word boundary.
func Summarize(description string, maxRunes int) Summary {
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptRunes
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		text := collapseSpace(description)
		return Summary{Excerpt: excerpt(text, maxRunes), Words: len(strings.Fields(text)), LangGuess: guessLanguage(text)}
	}

	doc.Find("script, style, noscript").Remove()

	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !strings.HasPrefix(href, "https://") && !strings.HasPrefix(href, "http://") {
			return
		}
		if !seen[href] {
			seen[href] = true
			links = append(links, href)
		}
	})

	// Block elements would otherwise glue adjacent words together.
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	text := collapseSpace(doc.Text())
	return Summary{
		Excerpt:   excerpt(text, maxRunes),
		Words:     len(strings.Fields(text)),
		Links:     links,
		LangGuess: guessLanguage(text),
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func excerpt(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) }) + "…"
}

func guessLanguage(text string) string {
	if text == "" {
		return "unknown"
	}

	cyrillicCount := 0
	latinCount := 0
	arabicCount := 0
	cjkCount := 0
	totalLetters := 0

	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		totalLetters++
		if unicode.Is(unicode.Cyrillic, r) {
			cyrillicCount++
		} else if unicode.Is(unicode.Latin, r) {
			latinCount++
		} else if unicode.Is(unicode.Arabic, r) {
			arabicCount++
		} else if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			cjkCount++
		}
	}

	if totalLetters == 0 {
		return "unknown"
	}

	cyrPct := float64(cyrillicCount) / float64(totalLetters)
	latPct := float64(latinCount) / float64(totalLetters)
	arPct := float64(arabicCount) / float64(totalLetters)
	cjkPct := float64(cjkCount) / float64(totalLetters)

	switch {
	case cyrPct >= 0.3:
		return "ru"
	case arPct >= 0.3:
		return "ar"
	case cjkPct >= 0.3:
		return "zh"
	case latPct >= 0.3:
		return "en"
	default:
		return "other"
	}
}
