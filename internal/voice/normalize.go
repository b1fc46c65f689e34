package voice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Markdown structure and symbols that TTS engines read out loud. Order
// matters: headings must go before the literal # substitution.
var (
	imagePattern      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	fencePattern      = regexp.MustCompile("```[a-zA-Z0-9]*")
	headingPattern    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	blockquotePattern = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	rulePattern       = regexp.MustCompile(`(?m)^[ \t]*-{3,}[ \t]*$`)
	bulletPattern     = regexp.MustCompile(`(?m)^[ \t]*[-+][ \t]+`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

var symbolReplacer = strings.NewReplacer(
	"&", " and ",
	"@", " at ",
	"#", " number ",
)

// CleanForVoice rewrites text for speech synthesis: markdown structure is
// stripped (link labels kept), spoken-out symbols are replaced with words and
// whitespace is collapsed. Applying it twice gives the same result.
func CleanForVoice(s string) string {
	s = imagePattern.ReplaceAllString(s, "$1")
	s = linkPattern.ReplaceAllString(s, "$1")
	s = fencePattern.ReplaceAllString(s, "")
	s = headingPattern.ReplaceAllString(s, "")
	s = blockquotePattern.ReplaceAllString(s, "")
	s = rulePattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, "")

	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "~~", "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.ReplaceAll(s, "_", " ")

	s = symbolReplacer.Replace(s)

	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Chunks splits s into pieces of at most max runes, cutting at sentence
// boundaries where possible and falling back to word boundaries. A max of
// zero or less disables splitting.
func Chunks(s string, max int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if max <= 0 {
		return []string{s}
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, sentence := range splitSentences(s) {
		n := utf8.RuneCountInString(sentence)
		if n > max {
			flush()
			out = append(out, splitWords(sentence, max)...)
			continue
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sentence)
		curLen += n
	}
	flush()
	return out
}

// Speakable is the full rewrite pipeline: normalize then chunk.
func Speakable(s string, max int) []string {
	return Chunks(CleanForVoice(s), max)
}

// splitSentences cuts after terminal punctuation. ASCII terminals only count
// when followed by a space or the end of the text, so decimals and
// abbreviations like 3.14 stay whole; CJK terminals always cut.
func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		ascii := r == '.' || r == '!' || r == '?'
		cjk := r == '。' || r == '！' || r == '？'
		if !ascii && !cjk {
			continue
		}
		if ascii && i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// splitWords packs whole words up to max runes, hard-splitting only words
// that are themselves longer than max.
func splitWords(s string, max int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(s) {
		n := utf8.RuneCountInString(word)
		if n > max {
			flush()
			runes := []rune(word)
			for len(runes) > max {
				out = append(out, string(runes[:max]))
				runes = runes[max:]
			}
			if len(runes) > 0 {
				cur.WriteString(string(runes))
				curLen = len(runes)
			}
			continue
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return out
}
