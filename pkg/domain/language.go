package domain

import (
	"path"
	"strings"
)

// Language identifies the editor mode of a file.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageHTML       Language = "html"
	LanguageCSS        Language = "css"
	LanguageSCSS       Language = "scss"
	LanguageLess       Language = "less"
	LanguageJSON       Language = "json"
	LanguageMarkdown   Language = "markdown"
	LanguagePython     Language = "python"
	LanguageImage      Language = "image"
	LanguagePlainText  Language = "plaintext"
)

var languagesByExt = map[string]Language{
	"js":   LanguageJavaScript,
	"jsx":  LanguageJavaScript,
	"mjs":  LanguageJavaScript,
	"cjs":  LanguageJavaScript,
	"ts":   LanguageTypeScript,
	"tsx":  LanguageTypeScript,
	"html": LanguageHTML,
	"htm":  LanguageHTML,
	"css":  LanguageCSS,
	"scss": LanguageSCSS,
	"less": LanguageLess,
	"json": LanguageJSON,
	"md":   LanguageMarkdown,
	"py":   LanguagePython,
	"jpg":  LanguageImage,
	"jpeg": LanguageImage,
	"png":  LanguageImage,
	"gif":  LanguageImage,
	"svg":  LanguageImage,
}

// Extension returns the lower-cased extension of p without the dot.
func Extension(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// LanguageOf infers the language from the path extension.
func LanguageOf(p string) Language {
	if lang, ok := languagesByExt[Extension(p)]; ok {
		return lang
	}
	return LanguagePlainText
}

// IsAsset reports whether the language is markup or a stylesheet, which the sandbox cannot run directly.
func (l Language) IsAsset() bool {
	switch l {
	case LanguageHTML, LanguageCSS, LanguageSCSS, LanguageLess:
		return true
	}
	return false
}

// IsImage reports whether the file is rendered as an image instead of text.
func (l Language) IsImage() bool {
	return l == LanguageImage
}
