// Package gitignore implements gitignore pattern matching with the
// semantics documented at https://git-scm.com/docs/gitignore: negation,
// directory-only patterns, anchoring, nested .gitignore scoping, and the
// * / ** / ? / [] glob forms.
//
// The scanner builds one Matcher per directory carrying a .gitignore and
// caches them; the watcher reuses the same matchers to drop events for
// ignored paths before they reach the job queue.
package gitignore
