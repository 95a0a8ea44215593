package repo

import (
	"path/filepath"
	"strings"
)

var extensionLanguage = map[string]string{
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".go":    "go",
	".rs":    "rust",
	".java":  "java",
	".rb":    "ruby",
	".php":   "php",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".kt":    "kotlin",
}

// LanguageOf returns the language of file by extension, or "" if unknown.
func LanguageOf(file string) string {
	return extensionLanguage[strings.ToLower(filepath.Ext(file))]
}

// DetectLanguages returns the distinct known languages of files in
// first-seen order.
func DetectLanguages(files []string) []string {
	seen := make(map[string]bool)
	langs := []string{}
	for _, f := range files {
		lang := LanguageOf(f)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs
}
