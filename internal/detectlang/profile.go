package detectlang

import "strings"

// BodyStyle describes how a language delimits the body of a function, method, or block.
type BodyStyle int

const (
	// BodyStyleUnsupported means bodies cannot be located by scanning (ex: Ruby's "def ... end"). Callers replace whole units.
	BodyStyleUnsupported BodyStyle = iota

	// BodyStyleBraces means the body sits between the first top-level Open delimiter and its matching Close delimiter.
	BodyStyleBraces

	// BodyStyleColon means the body follows the first top-level ':' and runs to the end of the unit (ex: Python).
	BodyStyleColon
)

// String returns a short name for s.
func (s BodyStyle) String() string {
	switch s {
	case BodyStyleBraces:
		return "braces"
	case BodyStyleColon:
		return "colon"
	default:
		return "unsupported"
	}
}

// defaultContextLines is the number of unchanged lines shown around a change when a language does not say otherwise.
const defaultContextLines = 3

// Profile is the per-language configuration record consumed by body extraction, tail stripping, and diffing.
//
// Profiles are plain values. Adding a language is adding one entry to the profiles table.
type Profile struct {
	Lang      Lang
	BodyStyle BodyStyle

	// Open and Close are the body delimiters for BodyStyleBraces. Zero otherwise.
	Open  byte
	Close byte

	// ClosingChars are the structural closing characters that may be stripped from the end of a unit before diffing (whitespace is always strippable).
	ClosingChars string

	// Quotes are the characters that open and close string/char literals. A backslash escapes the next character inside them.
	Quotes string

	// RawQuotes are quote characters whose literals do not process backslash escapes (ex: Go raw strings). Each must also appear in Quotes.
	RawQuotes string

	// LineComment starts a comment that runs to the end of the line (ex: "//", "#"). Empty if the language has none.
	LineComment string

	// BlockCommentOpen and BlockCommentClose delimit block comments (ex: "/*" and "*/"). Empty if the language has none.
	BlockCommentOpen  string
	BlockCommentClose string

	// WhitespaceSensitive languages must never be diffed with whitespace ignored.
	WhitespaceSensitive bool

	// ContextLines is the number of unchanged lines to show around each change when rendering a diff.
	ContextLines int

	// PreferStructural selects attempting a structural (hybrid) diff before falling back to a line diff.
	PreferStructural bool
}

// braces returns a profile for a C-family language whose bodies are delimited by '{' and '}' and whose comments are "//" and "/* */".
func braces(lang Lang, quotes string, rawQuotes string, preferStructural bool) Profile {
	return Profile{
		Lang:              lang,
		BodyStyle:         BodyStyleBraces,
		Open:              '{',
		Close:             '}',
		ClosingChars:      "})];",
		Quotes:            quotes,
		RawQuotes:         rawQuotes,
		LineComment:       "//",
		BlockCommentOpen:  "/*",
		BlockCommentClose: "*/",
		ContextLines:      defaultContextLines,
		PreferStructural:  preferStructural,
	}
}

var profiles = map[Lang]Profile{
	LangGo:         braces(LangGo, "\"'`", "`", true),
	LangJava:       braces(LangJava, "\"'", "", true),
	LangKotlin:     braces(LangKotlin, "\"'", "", true),
	LangJavaScript: braces(LangJavaScript, "\"'`", "", true),
	LangTypeScript: braces(LangTypeScript, "\"'`", "", true),
	LangC:          braces(LangC, "\"'", "", false),
	LangCpp:        braces(LangCpp, "\"'", "", false),
	LangCSharp:     braces(LangCSharp, "\"'", "", false),
	LangRust:       braces(LangRust, "\"", "", false),
	LangSwift:      braces(LangSwift, "\"", "", false),
	LangScala:      braces(LangScala, "\"'", "", false),
	LangPHP:        braces(LangPHP, "\"'", "", false),
	LangObjectiveC: braces(LangObjectiveC, "\"'", "", false),
	LangPython: {
		Lang:                LangPython,
		BodyStyle:           BodyStyleColon,
		Quotes:              "\"'",
		LineComment:         "#",
		WhitespaceSensitive: true,
		ContextLines:        4,
		PreferStructural:    true,
	},
	LangRuby: {
		Lang:         LangRuby,
		BodyStyle:    BodyStyleUnsupported,
		Quotes:       "\"'",
		LineComment:  "#",
		ContextLines: defaultContextLines,
	},
}

// ProfileFor returns the profile for lang. Unknown languages get a conservative profile: unsupported body extraction, whitespace-significant off, no structural
// diff, and default context lines.
func ProfileFor(lang Lang) Profile {
	if p, ok := profiles[lang]; ok {
		return p
	}
	return Profile{
		Lang:         lang,
		BodyStyle:    BodyStyleUnsupported,
		Quotes:       "\"'",
		ContextLines: defaultContextLines,
	}
}

// Known returns true if lang has a dedicated profile.
func Known(lang Lang) bool {
	_, ok := profiles[lang]
	return ok
}

// IsQuote reports whether c opens a literal in p.
func (p Profile) IsQuote(c byte) bool {
	return strings.IndexByte(p.Quotes, c) >= 0
}

// IsRawQuote reports whether c opens a literal in p that ignores backslash escapes.
func (p Profile) IsRawQuote(c byte) bool {
	return strings.IndexByte(p.RawQuotes, c) >= 0
}
