// Package scanner discovers indexable files under a repository root,
// honoring .gitignore rules, the configured ignore list, and sensitive
// file patterns. Results stream over a channel as they are found; the
// indexer collects and sorts them for reproducible runs.
package scanner

import "time"

// DefaultMaxFileSize caps indexable files at 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo is one discovered file.
type FileInfo struct {
	Path     string    // relative to the repo root, slash-separated
	AbsPath  string    // absolute path on disk
	Size     int64     // bytes
	ModTime  time.Time // last modification
	Language string    // detected language, "" when unknown
	IsDoc    bool      // documentation file (markdown, rst, plain text)
}

// ScanOptions configures one scan.
type ScanOptions struct {
	// RootDir is the repository root.
	RootDir string
	// Ignore lists directory and file names skipped in addition to
	// gitignore rules (.git, node_modules, ...).
	Ignore []string
	// RespectGitignore enables .gitignore parsing, including nested files.
	RespectGitignore bool
	// MaxFileSize caps file size in bytes; 0 means DefaultMaxFileSize.
	MaxFileSize int64
	// FollowSymlinks walks through symbolic links. Off by default.
	FollowSymlinks bool
	// IncludeDocs emits documentation files (IsDoc) alongside source.
	IncludeDocs bool
}

// ScanResult is one item from the scan channel.
type ScanResult struct {
	File *FileInfo
	Err  error
}

// languageByExt is the closed extension set the parser understands.
var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".go":   "go",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".sql":  "sql",
}

// docExts are documentation files picked up by DOCS_SCAN.
var docExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".rst":      true,
	".txt":      true,
}

// DetectLanguage maps a path to a parser language, or "" when the file
// is not indexable source.
func DetectLanguage(path string) string {
	return languageByExt[extOf(path)]
}

// IsDocPath reports whether the path is a documentation file.
func IsDocPath(path string) bool {
	return docExts[extOf(path)]
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return lower(path[i:])
		case '/', '\\':
			return ""
		}
	}
	return ""
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
