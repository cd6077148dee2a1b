package vars

import "strings"

// fullwidth maps full-width punctuation produced by IMEs and OCR output to
// the half-width forms macros are written with.
var fullwidth = strings.NewReplacer(
	"：", ":",
	"；", ";",
	"（", "(",
	"）", ")",
	"［", "[",
	"］", "]",
	"｛", "{",
	"｝", "}",
	"＜", "<",
	"＞", ">",
	"，", ",",
	"。", ".",
	"！", "!",
	"？", "?",
	"　", " ",
)

// Normalize folds full-width punctuation to half-width and trims surrounding
// whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(fullwidth.Replace(s))
}

// TextMatches reports whether observed on-screen text matches the wanted
// text. Both sides are normalized, trimmed and lowercased first. Exact
// requires equality; otherwise containment of want in observed suffices.
func TextMatches(observed, want string, exact bool) bool {
	o := strings.ToLower(Normalize(observed))
	w := strings.ToLower(Normalize(want))
	if exact {
		return o == w
	}
	return strings.Contains(o, w)
}
