package loam

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/stepwise/pkg/domain"
	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile names the ignore file honoured at the tree root and in each step directory.
const IgnoreFile = ".stepignore"

// FileTree reads step files from <root>/<stepID>/.
type FileTree struct {
	root string
}

// NewFileTree creates a FileTree rooted at root.
func NewFileTree(root string) *FileTree {
	return &FileTree{root: root}
}

// Read returns the files of stepID sorted by path. A missing directory yields no files.
func (t *FileTree) Read(stepID string) ([]domain.FileEntry, error) {
	dir := filepath.Join(t.root, filepath.FromSlash(stepID))
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	rules := ignoreRules(filepath.Join(t.root, IgnoreFile), filepath.Join(dir, IgnoreFile))

	var files []domain.FileEntry
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rules != nil && rules.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == IgnoreFile {
			return nil
		}
		if rules != nil && rules.MatchesPath(rel) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, domain.FileEntry{Path: "/" + rel, Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ignoreRules combines the given ignore files. It returns nil when none exist.
func ignoreRules(paths ...string) *ignore.GitIgnore {
	var lines []string
	for _, p := range paths {
		if rules, err := readIgnoreFile(p); err == nil {
			lines = append(lines, rules...)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
