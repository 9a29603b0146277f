package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

var ErrNotFound = errors.New("plan not found")

type planFile struct {
	Name        string     `yaml:"name"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Steps       []stepFile `yaml:"steps"`
}

type stepFile struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Run is shorthand for command plus args, split with shell word rules.
	Run string `yaml:"run"`
}

func Parse(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	p, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	p.Source = path
	if p.Name == "" {
		p.Name = nameFromPath(path)
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	return p, nil
}

func ParseBytes(data []byte) (*models.Plan, error) {
	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}

	p := &models.Plan{
		Name:        file.Name,
		Title:       file.Title,
		Description: file.Description,
	}
	for i, s := range file.Steps {
		step, err := s.toStep()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		p.Steps = append(p.Steps, step)
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	return p, nil
}

func (s stepFile) toStep() (models.CommandStep, error) {
	t, err := models.ParseCommandType(s.Type)
	if err != nil {
		return models.CommandStep{}, err
	}

	command, args := s.Command, s.Args
	if s.Run != "" {
		if s.Command != "" || len(s.Args) > 0 {
			return models.CommandStep{}, fmt.Errorf("'run' cannot be combined with 'command' or 'args'")
		}
		words, err := shellwords.Parse(s.Run)
		if err != nil {
			return models.CommandStep{}, fmt.Errorf("failed to split 'run': %w", err)
		}
		if t == models.CommandAur {
			// AUR steps only carry helper arguments.
			args = words
		} else if len(words) > 0 {
			command, args = words[0], words[1:]
		}
	}

	if t == models.CommandAur {
		return models.Aur(args, s.Name), nil
	}
	return models.NewStep(t, command, args, s.Name), nil
}

func Validate(p *models.Plan) error {
	if p.Name == "" {
		return fmt.Errorf("plan must have a name")
	}

	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %q must define at least one step", p.Name)
	}

	for i, s := range p.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d must have a name", i+1)
		}
		if _, err := models.ParseCommandType(string(s.Type)); err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
		if s.Type != models.CommandAur && s.Command == "" {
			return fmt.Errorf("step %q must have a command", s.Name)
		}
	}

	return nil
}

func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
