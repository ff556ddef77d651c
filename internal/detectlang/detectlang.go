package detectlang

import (
	"path/filepath"
	"strings"
)

// Lang represents a detected programming language.
type Lang string

const (
	LangUnknown    Lang = ""
	LangGo         Lang = "go"
	LangRuby       Lang = "rb"
	LangPython     Lang = "py"
	LangRust       Lang = "rs"
	LangJavaScript Lang = "js"
	LangTypeScript Lang = "ts"
	LangJava       Lang = "java"
	LangC          Lang = "c"
	LangCpp        Lang = "cpp"
	LangCSharp     Lang = "cs"
	LangPHP        Lang = "php"
	LangSwift      Lang = "swift"
	LangKotlin     Lang = "kt"
	LangScala      Lang = "scala"
	LangObjectiveC Lang = "objc"
)

var extToLang = map[string]Lang{
	".go":    LangGo,
	".rb":    LangRuby,
	".py":    LangPython,
	".pyi":   LangPython,
	".rs":    LangRust,
	".js":    LangJavaScript,
	".mjs":   LangJavaScript,
	".cjs":   LangJavaScript,
	".jsx":   LangJavaScript,
	".ts":    LangTypeScript,
	".tsx":   LangTypeScript,
	".java":  LangJava,
	".c":     LangC,
	".h":     LangC,
	".cpp":   LangCpp,
	".cc":    LangCpp,
	".cxx":   LangCpp,
	".hpp":   LangCpp,
	".hh":    LangCpp,
	".hxx":   LangCpp,
	".cs":    LangCSharp,
	".csx":   LangCSharp,
	".php":   LangPHP,
	".phtml": LangPHP,
	".swift": LangSwift,
	".kt":    LangKotlin,
	".kts":   LangKotlin,
	".scala": LangScala,
	".m":     LangObjectiveC,
	".mm":    LangObjectiveC,
}

// nameToLang holds loose, user-typed language names (ex: from a --lang flag or an editor's language id). Keys are lowercase.
var nameToLang = map[string]Lang{
	"go":          LangGo,
	"golang":      LangGo,
	"ruby":        LangRuby,
	"python":      LangPython,
	"python3":     LangPython,
	"rust":        LangRust,
	"javascript":  LangJavaScript,
	"ecmascript":  LangJavaScript,
	"typescript":  LangTypeScript,
	"java":        LangJava,
	"c":           LangC,
	"c++":         LangCpp,
	"cplusplus":   LangCpp,
	"csharp":      LangCSharp,
	"c#":          LangCSharp,
	"php":         LangPHP,
	"swift":       LangSwift,
	"kotlin":      LangKotlin,
	"scala":       LangScala,
	"objectivec":  LangObjectiveC,
	"objective-c": LangObjectiveC,
}

// FromPath returns the language indicated by path's extension, or LangUnknown. path does not need to exist.
func FromPath(path string) Lang {
	return langForExt(filepath.Ext(path))
}

// Parse maps a loose language name to a Lang. It accepts Lang values themselves ("kt", "py"), common names ("Kotlin", "python3"), and extensions with a
// leading dot (".tsx"). Matching is case-insensitive. Unrecognized names return LangUnknown.
func Parse(name string) Lang {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return LangUnknown
	}
	if strings.HasPrefix(n, ".") {
		return langForExt(n)
	}
	if lang, ok := nameToLang[n]; ok {
		return lang
	}
	if _, ok := profiles[Lang(n)]; ok {
		return Lang(n)
	}
	return langForExt("." + n)
}

// String returns the Lang value, or "unknown" for LangUnknown.
func (l Lang) String() string {
	if l == LangUnknown {
		return "unknown"
	}
	return string(l)
}

func langForExt(ext string) Lang {
	if lang, ok := extToLang[strings.ToLower(ext)]; ok {
		return lang
	}
	return LangUnknown
}
