package plan

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// ScriptLoader handles scripted (Lua) plans. Describe reads only the plan's
// metadata; Build runs the script and returns the steps.
type ScriptLoader interface {
	IsScript(path string) bool
	Describe(path string) (*models.Plan, error)
	Build(path string) (*models.Plan, error)
}

// Loader finds plans in a list of directories. Later directories override
// earlier ones.
type Loader struct {
	dirs    []string
	scripts ScriptLoader
}

func NewLoader(dirs []string, scripts ScriptLoader) *Loader {
	return &Loader{dirs: dirs, scripts: scripts}
}

// LoadAll describes every plan found. Scripted plans have no steps here, and
// files that fail to parse are skipped.
func (l *Loader) LoadAll() (map[string]*models.Plan, error) {
	plans := make(map[string]*models.Plan)

	for _, dir := range l.dirs {
		if err := l.loadFromDir(dir, plans); err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return plans, nil
}

func (l *Loader) loadFromDir(dir string, plans map[string]*models.Plan) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		var p *models.Plan
		switch {
		case isYAML(path):
			p, err = Parse(path)
		case l.scripts != nil && l.scripts.IsScript(path):
			p, err = l.scripts.Describe(path)
		default:
			continue
		}
		if err != nil {
			// One broken file must not hide the other plans.
			slog.Warn("Skipping unparsable plan.", "component", "plan", "path", path, "err", err)
			continue
		}

		plans[p.Name] = p
	}

	return nil
}

// Load returns a runnable plan by file path or by name.
func (l *Loader) Load(nameOrPath string) (*models.Plan, error) {
	path := nameOrPath
	if _, err := os.Stat(path); err != nil {
		plans, err := l.LoadAll()
		if err != nil {
			return nil, err
		}
		p, ok := plans[nameOrPath]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrPath)
		}
		path = p.Source
	}

	var p *models.Plan
	var err error
	switch {
	case isYAML(path):
		p, err = Parse(path)
	case l.scripts != nil && l.scripts.IsScript(path):
		p, err = l.scripts.Build(path)
	default:
		return nil, fmt.Errorf("unsupported plan file %s", path)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return p, nil
}

// Sorted returns plans ordered by name.
func Sorted(plans map[string]*models.Plan) []*models.Plan {
	list := make([]*models.Plan, 0, len(plans))
	for _, p := range plans {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
