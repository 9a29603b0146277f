package workspace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// Workspace is the on-disk archive of one run: run.json and the full output
// log.
type Workspace struct {
	Path    string
	LogPath string
}

type RunMetadata struct {
	RunID     int64                `json:"run_id"`
	SessionID string               `json:"session_id"`
	PlanName  string               `json:"plan_name"`
	Title     string               `json:"title"`
	Steps     []models.CommandStep `json:"steps"`
}

func runDir(baseDir string, runID int64) string {
	return filepath.Join(baseDir, fmt.Sprintf("run-%d", runID))
}

func Create(baseDir string, runID int64) (*Workspace, error) {
	path := runDir(baseDir, runID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return &Workspace{Path: path, LogPath: filepath.Join(path, "output.log")}, nil
}

func Open(baseDir string, runID int64) (*Workspace, error) {
	path := runDir(baseDir, runID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace for run %d does not exist", runID)
	}

	return &Workspace{Path: path, LogPath: filepath.Join(path, "output.log")}, nil
}

func (w *Workspace) WriteRunMetadata(meta *RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(w.Path, "run.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write run.json: %w", err)
	}
	return nil
}

func (w *Workspace) ReadRunMetadata() (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, "run.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read run.json: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}
	return &meta, nil
}

func (w *Workspace) ReadLog() (string, error) {
	data, err := os.ReadFile(w.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read output log: %w", err)
	}
	return string(data), nil
}

func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Path)
}

// OpenLog returns a surface that appends every log line of the run to
// output.log. Close it once the run has finished.
func (w *Workspace) OpenLog() (*LogSurface, error) {
	f, err := os.OpenFile(w.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output log: %w", err)
	}
	return &LogSurface{file: f, logger: slog.With("component", "workspace", "path", w.LogPath)}, nil
}

// LogSurface is a progress surface that only keeps the log text.
type LogSurface struct {
	mu     sync.Mutex
	file   *os.File
	failed bool
	logger *slog.Logger
}

func (l *LogSurface) AppendLog(text string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.failed {
		return
	}
	if _, err := l.file.WriteString(text); err != nil {
		// One warning is enough; the run itself goes on.
		l.failed = true
		l.logger.Warn("Failed to archive output.", "err", err)
	}
}

func (l *LogSurface) SetProgress(current, total int)                       {}
func (l *LogSurface) SetTitle(text string)                                 {}
func (l *LogSurface) UpdateStepStatus(index int, status models.TaskStatus) {}
func (l *LogSurface) ShowCompletion(success bool, message string)          {}
func (l *LogSurface) DisableCancel()                                       {}

func (l *LogSurface) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
