package domain

import (
	"path"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Lesson is an ordered sequence of steps.
type Lesson struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Steps []Step `json:"steps"`
}

// Step returns the step at index i.
func (l Lesson) Step(i int) (Step, error) {
	if i < 0 || i >= len(l.Steps) {
		return Step{}, ErrStepNotFound
	}
	return l.Steps[i], nil
}

// Step is one lesson unit. It is loaded once per navigation and replaced wholesale.
type Step struct {
	ID           string       `json:"id"`
	Files        []FileEntry  `json:"files"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Checkpoints  []Checkpoint `json:"checkpoints,omitempty"`

	// CurrentCheckpointID is the checkpoint the backend considers active when the step is loaded.
	CurrentCheckpointID string `json:"current_checkpoint_id,omitempty"`

	// Instructions is Markdown shown next to the editor.
	Instructions string `json:"instructions,omitempty"`

	// Start is an anchor string; the cursor is placed right after its first match on load.
	Start string `json:"start,omitempty"`

	// MainFile overrides the main-file selection when set.
	MainFile string `json:"main_file,omitempty"`
}

// File returns the entry for path.
func (s Step) File(p string) (FileEntry, bool) {
	for _, f := range s.Files {
		if f.Path == p {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Paths returns the file paths in step order.
func (s Step) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// FileEntry is a complete snapshot of one file of a step.
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Language is derived from the path extension.
func (f FileEntry) Language() Language {
	return LanguageOf(f.Path)
}

// Dependency is a package the sandbox needs; it resolves externally to virtual files.
type Dependency struct {
	Package string `json:"package" mapstructure:"package"`
	Version string `json:"version" mapstructure:"version"`
}

func (d Dependency) String() string {
	return d.Package + "@" + d.Version
}

// Primary filenames, in priority order, used when a step has no explicit main file.
var PrimaryFilenames = []string{"app.tsx", "index.html"}

// SelectMain picks the runnable entry among paths: the override when present,
// then a conventional primary filename, then the first path without a spec/test marker.
// It returns "" only when paths is empty.
func SelectMain(paths []string, override string) string {
	if override != "" {
		for _, p := range paths {
			if p == override {
				return p
			}
		}
	}
	for _, name := range PrimaryFilenames {
		for _, p := range paths {
			if strings.TrimPrefix(p, "/") == name {
				return p
			}
		}
	}
	for _, p := range paths {
		if !IsTestFile(p) {
			return p
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}

// IsTestFile reports whether the base name carries a spec or test marker.
func IsTestFile(p string) bool {
	base := strings.ToLower(path.Base(p))
	return strings.Contains(base, "spec") || strings.Contains(base, "test")
}

// Hover is what the pointer rests on: the word beneath it and, when the
// learner has a selection, whether the pointer lies inside it.
type Hover struct {
	Word        string `json:"word,omitempty"`
	InSelection bool   `json:"in_selection,omitempty"`
	Selection   string `json:"selection,omitempty"`
}

// Position is a 1-based cursor location in editor coordinates. Columns count
// UTF-16 code units, as browser editors do.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Offset converts the position to a byte offset within text, clamping out-of-range values.
func (p Position) Offset(text string) int {
	lines := strings.Split(text, "\n")
	line := p.Line - 1
	if line < 0 {
		return 0
	}
	if line >= len(lines) {
		return len(text)
	}
	offset := 0
	for i := 0; i < line; i++ {
		offset += len(lines[i]) + 1
	}
	return offset + columnOffset(lines[line], p.Column-1)
}

// columnOffset returns the byte offset of the units-th UTF-16 unit of line.
// A column inside a surrogate pair resolves to the start of its rune.
func columnOffset(line string, units int) int {
	n := 0
	for i, r := range line {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if n+w > units {
			return i
		}
		n += w
	}
	return len(line)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}

// PositionAt converts a byte offset within text to a Position. An offset
// inside a multibyte rune resolves to the start of that rune.
func PositionAt(text string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	col := utf16Len(before[strings.LastIndex(before, "\n")+1:]) + 1
	return Position{Line: line, Column: col}
}

// LocateAnchor returns the position right after the first case-sensitive match of anchor.
func LocateAnchor(content, anchor string) (Position, bool) {
	if anchor == "" {
		return Position{}, false
	}
	idx := strings.Index(content, anchor)
	if idx < 0 {
		return Position{}, false
	}
	return PositionAt(content, idx+len(anchor)), true
}
