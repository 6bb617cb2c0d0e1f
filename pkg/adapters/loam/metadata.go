package loam

// Document types recognised in front matter.
const (
	TypeLesson = "lesson"
	TypeStep   = "step"
)

// StepMetadata is the front matter of a lesson or step document.
// It uses "mapstructure" tags to match the YAML keys authors write.
type StepMetadata struct {
	ID    string `json:"id" mapstructure:"id"`
	Type  string `json:"type" mapstructure:"type"`
	Title string `json:"title" mapstructure:"title"`

	// Steps lists the step document IDs of a lesson, in order.
	Steps []string `json:"steps" mapstructure:"steps"`

	Files []LoaderFile `json:"files" mapstructure:"files"`

	// Dependencies entries are either "pkg@version" strings or {package, version} maps.
	Dependencies []any `json:"dependencies" mapstructure:"dependencies"`

	Checkpoints       []LoaderCheckpoint `json:"checkpoints" mapstructure:"checkpoints"`
	CurrentCheckpoint string             `json:"current_checkpoint" mapstructure:"current_checkpoint"`

	// Start is the anchor the cursor is placed after on load.
	Start    string `json:"start" mapstructure:"start"`
	MainFile string `json:"main_file" mapstructure:"main_file"`
}

// LoaderFile is an inline file of a step.
type LoaderFile struct {
	Path    string `json:"path" mapstructure:"path"`
	Content string `json:"content" mapstructure:"content"`
}

// LoaderCheckpoint is a checkpoint as authored.
// Test is either a bare string or a {pattern, path} map.
type LoaderCheckpoint struct {
	ID      string `json:"id" mapstructure:"id"`
	Message string `json:"message" mapstructure:"message"`
	Test    any    `json:"test" mapstructure:"test"`
}
