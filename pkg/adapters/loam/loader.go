package loam

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Loader adapts a Loam repository to the ports.LessonLoader interface.
type Loader struct {
	Repo  *loam.TypedRepository[StepMetadata]
	files *FileTree
}

// Option configures the Loader.
type Option func(*Loader)

// WithFiles reads extra step files from dir/<stepID>/.
func WithFiles(dir string) Option {
	return func(l *Loader) {
		if dir != "" {
			l.files = NewFileTree(dir)
		}
	}
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[StepMetadata], opts ...Option) *Loader {
	l := &Loader{
		Repo: repo,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open initialises a read-only Loam repository at root and wraps it.
func Open(root string, opts ...Option) (*Loader, error) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[StepMetadata](repo), opts...), nil
}

// Load assembles the lesson document id and its steps.
func (l *Loader) Load(ctx context.Context, id string) (domain.Lesson, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Lesson{}, fmt.Errorf("%s: %w", id, domain.ErrLessonNotFound)
		}
		return domain.Lesson{}, fmt.Errorf("loam get failed for %s: %w", id, err)
	}
	if doc.Data.Type != TypeLesson {
		return domain.Lesson{}, fmt.Errorf("document %s is not a lesson (type %q)", id, doc.Data.Type)
	}

	lesson := domain.Lesson{
		ID:    trimExtension(id),
		Title: doc.Data.Title,
		Steps: make([]domain.Step, 0, len(doc.Data.Steps)),
	}
	for _, ref := range doc.Data.Steps {
		step, err := l.loadStep(ctx, ref)
		if err != nil {
			return domain.Lesson{}, fmt.Errorf("lesson %s: %w", lesson.ID, err)
		}
		lesson.Steps = append(lesson.Steps, step)
	}
	if len(lesson.Steps) == 0 {
		return domain.Lesson{}, fmt.Errorf("lesson %s: %w", lesson.ID, domain.ErrStepNotFound)
	}
	return lesson, nil
}

func (l *Loader) loadStep(ctx context.Context, ref string) (domain.Step, error) {
	doc, err := l.Repo.Get(ctx, ref)
	if err != nil {
		return domain.Step{}, fmt.Errorf("loam get failed for step %s: %w", ref, err)
	}
	meta := doc.Data

	rawID := meta.ID
	if rawID == "" {
		rawID = doc.ID
	}
	step := domain.Step{
		ID:                  trimExtension(rawID),
		Instructions:        strings.TrimSpace(doc.Content),
		CurrentCheckpointID: meta.CurrentCheckpoint,
		Start:               meta.Start,
		MainFile:            meta.MainFile,
	}

	files, err := l.buildFiles(step.ID, meta.Files)
	if err != nil {
		return domain.Step{}, err
	}
	step.Files = files

	deps, err := buildDependencies(meta.Dependencies)
	if err != nil {
		return domain.Step{}, fmt.Errorf("step %s: %w", step.ID, err)
	}
	step.Dependencies = deps

	checkpoints, err := buildCheckpoints(step.ID, meta.Checkpoints, step.Paths())
	if err != nil {
		return domain.Step{}, fmt.Errorf("step %s: %w", step.ID, err)
	}
	step.Checkpoints = checkpoints

	return step, nil
}

// buildFiles merges inline files with the step's file directory. Inline
// entries come first and win over directory files of the same path.
func (l *Loader) buildFiles(stepID string, inline []LoaderFile) ([]domain.FileEntry, error) {
	files := make([]domain.FileEntry, 0, len(inline))
	seen := make(map[string]bool, len(inline))
	for _, f := range inline {
		p := normalizePath(f.Path)
		if p == "/" {
			return nil, fmt.Errorf("step %s: inline file missing path", stepID)
		}
		if seen[p] {
			return nil, fmt.Errorf("step %s: duplicate file %s", stepID, p)
		}
		seen[p] = true
		files = append(files, domain.FileEntry{Path: p, Content: f.Content})
	}

	if l.files == nil {
		return files, nil
	}
	extra, err := l.files.Read(stepID)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", stepID, err)
	}
	for _, f := range extra {
		if !seen[f.Path] {
			files = append(files, f)
		}
	}
	return files, nil
}

func buildDependencies(raw []any) ([]domain.Dependency, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	deps := make([]domain.Dependency, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			dep, err := parseDependency(v)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dep)
		case map[string]any, map[any]any:
			var dep domain.Dependency
			if err := mapstructure.Decode(v, &dep); err != nil {
				return nil, fmt.Errorf("failed to decode dependency: %w", err)
			}
			if dep.Package == "" || dep.Version == "" {
				return nil, fmt.Errorf("dependency needs package and version: %v", v)
			}
			deps = append(deps, dep)
		default:
			return nil, fmt.Errorf("invalid dependency definition type: %T", v)
		}
	}
	return deps, nil
}

// parseDependency splits "pkg@version". Scoped names keep their leading "@".
func parseDependency(s string) (domain.Dependency, error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return domain.Dependency{}, fmt.Errorf("dependency %q must be pkg@version", s)
	}
	return domain.Dependency{Package: s[:at], Version: s[at+1:]}, nil
}

func buildCheckpoints(stepID string, raw []LoaderCheckpoint, paths []string) ([]domain.Checkpoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	checkpoints := make([]domain.Checkpoint, 0, len(raw))
	ids := make(map[string]bool, len(raw))
	for i, c := range raw {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", stepID, i+1)
		}
		if ids[id] {
			return nil, fmt.Errorf("duplicate checkpoint %s", id)
		}
		ids[id] = true

		test, err := buildTest(c.Test, paths)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", id, err)
		}
		checkpoints = append(checkpoints, domain.Checkpoint{
			ID:      id,
			Message: c.Message,
			Test:    test,
		})
	}
	return checkpoints, nil
}

func buildTest(raw any, paths []string) (domain.TestSpec, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return domain.TestSpec{}, fmt.Errorf("empty test")
		}
		// Authors may omit the leading slash of a step file.
		if !strings.HasPrefix(v, "/") && containsPath(paths, "/"+v) {
			return domain.TestSpec{Path: "/" + v}, nil
		}
		return domain.ClassifyTest(v, paths), nil
	case map[string]any, map[any]any:
		var spec domain.TestSpec
		if err := mapstructure.Decode(v, &spec); err != nil {
			return domain.TestSpec{}, fmt.Errorf("failed to decode test: %w", err)
		}
		if spec.Path != "" {
			spec.Path = normalizePath(spec.Path)
		}
		if spec.Path == "" && spec.Pattern == "" {
			return domain.TestSpec{}, fmt.Errorf("test needs a pattern or a path")
		}
		return spec, nil
	case nil:
		return domain.TestSpec{}, fmt.Errorf("missing test")
	default:
		return domain.TestSpec{}, fmt.Errorf("invalid test definition type: %T", v)
	}
}

// List returns the IDs of the lesson documents in the repository.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.Type != TypeLesson {
			continue
		}
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// normalizePath returns an absolute, slash-separated workspace path.
func normalizePath(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func containsPath(paths []string, p string) bool {
	for _, candidate := range paths {
		if candidate == p {
			return true
		}
	}
	return false
}
