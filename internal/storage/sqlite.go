package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/xerolinux/xero-toolkit/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		plan_name TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		message TEXT,
		total_steps INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		step_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		command_type TEXT NOT NULL,
		program TEXT NOT NULL,
		args TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		exit_code INTEGER,
		pid INTEGER,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(run_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (session_id, plan_name, title, status, message, total_steps)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.SessionID, run.PlanName, run.Title, run.Status, run.Message, run.TotalSteps,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const runColumns = `id, session_id, created_at, completed_at, plan_name, title, status, message, total_steps`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var completedAt sql.NullTime
	var message sql.NullString

	err := row.Scan(
		&run.ID, &run.SessionID, &run.CreatedAt, &completedAt, &run.PlanName,
		&run.Title, &run.Status, &message, &run.TotalSteps,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if message.Valid {
		run.Message = message.String
	}
	return &run, nil
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

func (s *Storage) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, message = ? WHERE id = ?`,
		run.CompletedAt, run.Status, run.Message, run.ID,
	)
	return err
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// ListRunsByStatus returns every run with the given status, oldest first.
func (s *Storage) ListRunsByStatus(status models.RunStatus) ([]*models.Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY id`, status)
}

func (s *Storage) queryRuns(query string, args ...any) ([]*models.Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *Storage) CreateExecution(exec *models.Execution) (int64, error) {
	argsJSON, err := json.Marshal(exec.Args)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec(
		`INSERT INTO executions (run_id, step_index, name, command_type, program, args, status, exit_code, pid, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.RunID, exec.StepIndex, exec.Name, exec.CommandType, exec.Program, string(argsJSON),
		exec.Status, exec.ExitCode, exec.PID, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetExecutionsForRun(runID int64) ([]*models.Execution, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, step_index, name, command_type, program, args, status, exit_code, pid, started_at, completed_at
		 FROM executions WHERE run_id = ? ORDER BY step_index`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		var exec models.Execution
		var argsJSON sql.NullString
		var exitCode, pid sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&exec.ID, &exec.RunID, &exec.StepIndex, &exec.Name, &exec.CommandType, &exec.Program,
			&argsJSON, &exec.Status, &exitCode, &pid, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		if argsJSON.Valid {
			var args []string
			if err := json.Unmarshal([]byte(argsJSON.String), &args); err == nil {
				exec.Args = args
			}
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			exec.ExitCode = &code
		}
		if pid.Valid {
			p := int(pid.Int64)
			exec.PID = &p
		}
		if startedAt.Valid {
			exec.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			exec.CompletedAt = &completedAt.Time
		}

		execs = append(execs, &exec)
	}

	return execs, rows.Err()
}

func (s *Storage) GetRunningExecutionForRun(runID int64) (*models.Execution, error) {
	execs, err := s.GetExecutionsForRun(runID)
	if err != nil {
		return nil, err
	}
	for _, exec := range execs {
		if exec.Status == models.TaskRunning {
			return exec, nil
		}
	}
	return nil, nil
}

func (s *Storage) UpdateExecution(exec *models.Execution) error {
	_, err := s.db.Exec(
		`UPDATE executions SET status = ?, exit_code = ?, pid = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		exec.Status, exec.ExitCode, exec.PID, exec.StartedAt, exec.CompletedAt, exec.ID,
	)
	return err
}

func (s *Storage) DeleteRun(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM executions WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}
