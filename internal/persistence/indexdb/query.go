package indexdb

import (
	"context"
	"database/sql"
)

// Summary aggregates one session's reconciliation history.
type Summary struct {
	Reconciliations int
	Replayed        int
	MaxRemaining    int
	MeanAuthError   float64
	Corrections     int
	Snaps           int
	MaxDrift        float64
	Binds           int
	Unbinds         int
}

func (s *SQLiteIndex) Summary(ctx context.Context, session string) (Summary, error) {
	var out Summary
	var replayed, maxRemaining sql.NullInt64
	var meanErr sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(replayed), MAX(remaining), AVG(CASE WHEN has_auth = 1 THEN auth_error END)
		FROM reconciliations WHERE session_id = ?`, session).
		Scan(&out.Reconciliations, &replayed, &maxRemaining, &meanErr)
	if err != nil {
		return out, err
	}
	out.Replayed = int(replayed.Int64)
	out.MaxRemaining = int(maxRemaining.Int64)
	out.MeanAuthError = meanErr.Float64

	var snaps sql.NullInt64
	var maxDrift sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(snapped), MAX(dist)
		FROM corrections WHERE session_id = ?`, session).
		Scan(&out.Corrections, &snaps, &maxDrift)
	if err != nil {
		return out, err
	}
	out.Snaps = int(snaps.Int64)
	out.MaxDrift = maxDrift.Float64

	rows, err := s.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM bindings WHERE session_id = ? GROUP BY event`, session)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return out, err
		}
		switch event {
		case "bind":
			out.Binds = n
		case "unbind":
			out.Unbinds = n
		}
	}
	return out, rows.Err()
}

// Sessions lists recorded session ids, oldest first.
func (s *SQLiteIndex) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
