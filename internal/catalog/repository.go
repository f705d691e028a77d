package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type Repository interface {
	CreateEvaluation(ctx context.Context, e *Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, clipID string, limit int) ([]*Evaluation, error)
	CountEvaluations(ctx context.Context) (int, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobEvaluation(ctx context.Context, id, evaluationID string) error
	CountJobsByStatus(ctx context.Context) (map[string]int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateEvaluation stores the evaluation and its flags in one transaction.
func (r *SQLiteRepository) CreateEvaluation(ctx context.Context, e *Evaluation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var hScore sql.NullFloat64
	if e.HeuristicScore != nil {
		hScore = sql.NullFloat64{Float64: *e.HeuristicScore, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evaluations (id, clip_id, verdict, score, heuristic_score, combine_method, reasoning_status,
			explanation, clip_path, detections_path, report_path, overlay_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ClipID, e.Verdict, e.Score, hScore, e.CombineMethod, e.ReasoningStatus,
		e.Explanation, e.ClipPath, e.DetectionsPath, e.ReportPath, e.OverlayPath, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	for i, f := range e.Flags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO flagged_objects (evaluation_id, position, object_id, source, reason)
			VALUES (?, ?, ?, ?, ?)
		`, e.ID, i, f.ObjectID, f.Source, f.Reason)
		if err != nil {
			return fmt.Errorf("insert flag %s: %w", f.ObjectID, err)
		}
	}

	return tx.Commit()
}

const evaluationColumns = `id, clip_id, verdict, score, heuristic_score, combine_method, reasoning_status,
	explanation, clip_path, detections_path, report_path, overlay_path, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*Evaluation, error) {
	var e Evaluation
	var hScore sql.NullFloat64
	var createdAt string

	err := row.Scan(&e.ID, &e.ClipID, &e.Verdict, &e.Score, &hScore, &e.CombineMethod, &e.ReasoningStatus,
		&e.Explanation, &e.ClipPath, &e.DetectionsPath, &e.ReportPath, &e.OverlayPath, &createdAt)
	if err != nil {
		return nil, err
	}
	if hScore.Valid {
		v := hScore.Float64
		e.HeuristicScore = &v
	}
	e.CreatedAt = parseTime(createdAt)
	e.Flags = []FlagItem{}
	return &e, nil
}

func (r *SQLiteRepository) GetEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	e, err := scanEvaluation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	flags, err := r.loadFlags(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Flags = flags
	return e, nil
}

func (r *SQLiteRepository) loadFlags(ctx context.Context, evaluationID string) ([]FlagItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_id, source, reason FROM flagged_objects
		WHERE evaluation_id = ? ORDER BY position ASC
	`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := []FlagItem{}
	for rows.Next() {
		var f FlagItem
		if err := rows.Scan(&f.ObjectID, &f.Source, &f.Reason); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ListEvaluations returns the newest evaluations first, optionally limited
// to one clip id. Flags are not loaded.
func (r *SQLiteRepository) ListEvaluations(ctx context.Context, clipID string, limit int) ([]*Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if clipID != "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations
			WHERE clip_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, clipID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations
			ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evals := []*Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

func (r *SQLiteRepository) CountEvaluations(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluations").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, clip_path, detections_path, outputs_dir, overlay, evaluation_id,
			progress, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, j.ClipPath, j.DetectionsPath, j.OutputsDir, boolToInt(j.Overlay),
		nullString(j.EvaluationID), j.Progress, nullString(j.Error), formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

const jobColumns = `id, type, status, clip_path, detections_path, outputs_dir, overlay, evaluation_id,
	progress, error, created_at, updated_at`

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var overlay int
	var evaluationID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.ClipPath, &j.DetectionsPath, &j.OutputsDir, &overlay,
		&evaluationID, &j.Progress, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.Overlay = overlay == 1
	j.EvaluationID = evaluationID.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE status = 'pending' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	jobs := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) SetJobEvaluation(ctx context.Context, id, evaluationID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET evaluation_id = ?, updated_at = ? WHERE id = ?
	`, nullString(evaluationID), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
