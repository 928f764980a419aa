// Package fulltext turns text into the term set stored in full-text indexes.
//
// The same [Tokenize] is applied when indexing item fields and when parsing a
// search phrase, so a phrase term matches any indexed token it prefixes.
package fulltext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into a base letter plus a combining mark.
var foldReplacer = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"ø", "o",
	"œ", "oe",
	"đ", "d",
	"ł", "l",
	"þ", "th",
	"ð", "d",
	"ı", "i",
)

// Fold lowercases s and strips diacritics: "Crème Brûlée" becomes
// "creme brulee".
func Fold(s string) string {
	// transform.Chain keeps state, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		// Only invalid UTF-8 can fail here; fall back to the lowercased input.
		folded = strings.ToLower(s)
	}

	return foldReplacer.Replace(folded)
}

// Tokenize returns the distinct terms of text in first-appearance order.
//
// Text is folded ([Fold]), split on whitespace, and stripped of everything
// that is not a letter, digit or mark. Tokens left empty are dropped.
func Tokenize(text string) []string {
	fields := strings.Fields(Fold(text))
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, field := range fields {
		term := strings.Map(keepRune, field)
		if term == "" {
			continue
		}

		if _, dup := seen[term]; dup {
			continue
		}

		seen[term] = struct{}{}
		out = append(out, term)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func keepRune(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
		return r
	}

	return -1
}

// PrefixUpperBound returns the smallest string greater than every string
// starting with prefix, for a half-open [prefix, bound) scan.
//
// It increments the last rune of prefix. An empty prefix has no bound and
// yields "".
func PrefixUpperBound(prefix string) string {
	if prefix == "" {
		return ""
	}

	r, size := utf8.DecodeLastRuneInString(prefix)
	head := prefix[:len(prefix)-size]

	if r == utf8.RuneError || r == unicode.MaxRune {
		// Not incrementable as a rune; fall back to bytes.
		b := []byte(prefix)
		for i := len(b) - 1; i >= 0; i-- {
			if b[i] < 0xff {
				b[i]++

				return string(b[:i+1])
			}
		}

		return ""
	}

	next := r + 1
	if next >= 0xD800 && next <= 0xDFFF {
		next = 0xE000
	}

	return head + string(next)
}
