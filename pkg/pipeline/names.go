package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// symbolNames spell out the ASCII symbols a legend commonly carries.
var symbolNames = map[rune]string{
	'+': "plus", '-': "minus", '*': "star", '/': "slash", '\\': "backslash",
	'=': "equals", '.': "dot", ',': "comma", ':': "colon", ';': "semicolon",
	'#': "hash", '%': "percent", '&': "and", '@': "at", '!': "bang",
	'?': "question", '$': "dollar", '^': "caret", '~': "tilde", '_': "underscore",
	'(': "lparen", ')': "rparen", '[': "lbracket", ']': "rbracket",
	'{': "lbrace", '}': "rbrace", '<': "lt", '>': "gt", '|': "pipe",
	'\'': "quote", '"': "dquote", '`': "backtick", ' ': "space",
}

func normalizeText(s string) string {
	return norm.NFC.String(s)
}

// SanitizeText turns a legend into a file-name-safe word: ASCII letters and
// digits are kept, common symbols are spelled out and anything else becomes
// uXXXX. Empty text is "blank".
func SanitizeText(text string) string {
	if text == "" {
		return "blank"
	}
	var b strings.Builder
	for _, r := range normalizeText(text) {
		switch {
		case r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			b.WriteRune(r)
		case symbolNames[r] != "":
			b.WriteString(symbolNames[r])
		default:
			fmt.Fprintf(&b, "u%04X", r)
		}
	}
	return b.String()
}

// sanitizeID keeps letters, digits, '-' and '_' of an id.
func sanitizeID(id ID) string {
	var b strings.Builder
	for _, r := range string(id) {
		if r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename returns "<id>_<text>.stl".
func Filename(id ID, text string) string {
	return sanitizeID(id) + "_" + SanitizeText(text) + ".stl"
}

// namer hands out unique file names in call order. A taken name gets the
// keycap id appended, then a counter.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

func (n *namer) name(id ID, text string) string {
	stem := sanitizeID(id) + "_" + SanitizeText(text)
	if n.take(stem) {
		return stem + ".stl"
	}
	stem += "_" + sanitizeID(id)
	if n.take(stem) {
		return stem + ".stl"
	}
	for i := 2; ; i++ {
		if s := stem + "_" + strconv.Itoa(i); n.take(s) {
			return s + ".stl"
		}
	}
}

func (n *namer) take(stem string) bool {
	if n.used[stem] {
		return false
	}
	n.used[stem] = true
	return true
}
