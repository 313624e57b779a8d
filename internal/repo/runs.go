package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"onboardline/internal/domain"
)

func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.GenerationRun) error {
	var analysis any
	if run.Analysis != nil {
		data, err := json.Marshal(run.Analysis)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		analysis = string(data)
	}
	findings := run.Findings
	if findings == nil {
		findings = []string{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO generation_runs(id,project_id,session_id,kind,path,analysis_json,findings_json,stats_json,actor_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.ProjectID, run.SessionID, run.Kind, run.Path, analysis, string(findingsJSON), string(statsJSON), run.ActorID, run.CreatedAt)
	return err
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.GenerationRun, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM generation_runs WHERE id=?`, id))
}

// LatestRun returns the newest run of a kind for a session.
func (r Repo) LatestRun(ctx context.Context, sessionID, kind string) (domain.GenerationRun, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM generation_runs WHERE session_id=? AND kind=?
ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID, kind))
}

func (r Repo) ListRuns(ctx context.Context, sessionID string) ([]domain.GenerationRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM generation_runs WHERE session_id=? ORDER BY created_at DESC, rowid DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GenerationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

const runColumns = `id,project_id,session_id,kind,path,analysis_json,findings_json,stats_json,actor_id,created_at`

func scanRun(row interface{ Scan(...any) error }) (domain.GenerationRun, error) {
	var run domain.GenerationRun
	var analysis sql.NullString
	var findings, stats string
	err := row.Scan(&run.ID, &run.ProjectID, &run.SessionID, &run.Kind, &run.Path, &analysis, &findings, &stats, &run.ActorID, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	if analysis.Valid && analysis.String != "" {
		var a domain.Analysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return run, fmt.Errorf("decode analysis for run %s: %w", run.ID, err)
		}
		run.Analysis = &a
	}
	if err := json.Unmarshal([]byte(findings), &run.Findings); err != nil {
		return run, fmt.Errorf("decode findings for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return run, fmt.Errorf("decode stats for run %s: %w", run.ID, err)
	}
	return run, nil
}
