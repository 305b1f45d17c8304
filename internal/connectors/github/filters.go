package github

import (
	"path"
	"sort"
	"strings"
)

// docExtensions are the documentation file extensions.
var docExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".rst": true,
	".adoc": true, ".org": true, ".tex": true,
}

// languageByExtension maps code file extensions to a language name.
// Only these files are ingested by the code stage.
var languageByExtension = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".hpp":   "cpp",
	".cs":    "csharp",
	".go":    "go",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".r":     "r",
	".m":     "objective-c",
	".dart":  "dart",
	".lua":   "lua",
}

// languageRank orders languages by how often they carry a project's core
// logic. Unlisted languages sort last.
var languageRank = map[string]int{
	"python": 0, "javascript": 1, "typescript": 2, "go": 3, "java": 4,
	"rust": 5, "cpp": 6, "c": 7, "csharp": 8, "ruby": 9, "php": 10,
	"swift": 11, "kotlin": 12, "scala": 13,
}

// excludedDirs are path segments never walked.
var excludedDirs = map[string]bool{
	"node_modules": true, "vendor": true, "third_party": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	"target": true, "out": true, ".next": true, ".git": true,
	".svn": true, ".hg": true, ".idea": true, ".vscode": true,
	".vs": true, "__pycache__": true, ".cache": true, ".pytest_cache": true,
}

// excludedFiles are base-name globs never ingested.
var excludedFiles = []string{
	".DS_Store", "Thumbs.db", "*.pyc", "*.pyo", "*.so", "*.dll", "*.exe",
	"*.min.js", "*.min.css", "*.csv", "*.json.gz", "*.zip", "*.tar.gz",
}

// priorityFiles are base-name globs for entry points and manifests.
var priorityFiles = []string{
	"main.*", "app.*", "index.*", "server.*", "client.*", "config.*",
	"settings.*", "package.json", "setup.py", "Cargo.toml",
}

// priorityDirs are top-level directories that usually hold core code.
var priorityDirs = map[string]bool{
	"src": true, "lib": true, "core": true, "app": true, "main": true,
}

// IsExcludedDir reports whether a directory name is skipped.
func IsExcludedDir(name string) bool {
	return excludedDirs[name]
}

// IsExcluded reports whether a slash-separated repository path is skipped.
func IsExcluded(p string) bool {
	dir, base := path.Split(p)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if excludedDirs[seg] {
			return true
		}
	}
	for _, pattern := range excludedFiles {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// IsDocFile reports whether a path is documentation.
func IsDocFile(p string) bool {
	if IsExcluded(p) {
		return false
	}
	base := strings.ToUpper(path.Base(p))
	if strings.HasPrefix(base, "README") {
		return true
	}
	return docExtensions[strings.ToLower(path.Ext(p))]
}

// LanguageFor returns the language of a code file, or "".
func LanguageFor(p string) string {
	return languageByExtension[strings.ToLower(path.Ext(p))]
}

// IsCodeFile reports whether a path is ingested by the code stage.
func IsCodeFile(p string) bool {
	return !IsExcluded(p) && LanguageFor(p) != ""
}

// docRank orders documentation: READMEs, then project guides, then the
// rest by depth.
func docRank(p string) int {
	base := strings.ToUpper(path.Base(p))
	depth := strings.Count(p, "/")
	switch {
	case strings.HasPrefix(base, "README"):
		return depth
	case strings.HasPrefix(base, "CONTRIBUTING"),
		strings.HasPrefix(base, "CHANGELOG"),
		strings.HasPrefix(base, "LICENSE"):
		return 100 + depth
	default:
		return 200 + depth
	}
}

// codeRank orders code files: priority patterns, then popular languages,
// then shallow paths.
func codeRank(p string) (int, int, int) {
	pattern := 2
	base := path.Base(p)
	for _, glob := range priorityFiles {
		if ok, _ := path.Match(glob, base); ok {
			pattern = 0
			break
		}
	}
	if pattern != 0 {
		if top, _, found := strings.Cut(p, "/"); found && priorityDirs[top] {
			pattern = 1
		}
	}

	lang, ok := languageRank[LanguageFor(p)]
	if !ok {
		lang = len(languageRank)
	}
	return pattern, lang, strings.Count(p, "/")
}

// SortDocFiles orders documentation files by priority, then path.
func SortDocFiles(files []TreeFile) {
	sort.SliceStable(files, func(i, j int) bool {
		ri, rj := docRank(files[i].Path), docRank(files[j].Path)
		if ri != rj {
			return ri < rj
		}
		return files[i].Path < files[j].Path
	})
}

// SortCodeFiles orders code files by priority, then path.
func SortCodeFiles(files []TreeFile) {
	sort.SliceStable(files, func(i, j int) bool {
		pi, li, di := codeRank(files[i].Path)
		pj, lj, dj := codeRank(files[j].Path)
		switch {
		case pi != pj:
			return pi < pj
		case li != lj:
			return li < lj
		case di != dj:
			return di < dj
		default:
			return files[i].Path < files[j].Path
		}
	})
}
