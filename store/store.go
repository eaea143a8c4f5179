package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/labels"
	"github.com/wesleyyjpark/506MBTAProject/pipeline"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool and checks it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db pool init: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveRun upserts the run summary keyed by run id.
func (s *Store) SaveRun(ctx context.Context, rep *pipeline.Report) error {
	row, err := runRow(rep)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO model_runs (run_id, started_at, data_start, data_end, accuracy, baseline,
			train_rows, test_rows, label_policy, selected, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			accuracy = EXCLUDED.accuracy,
			baseline = EXCLUDED.baseline,
			train_rows = EXCLUDED.train_rows,
			test_rows = EXCLUDED.test_rows,
			selected = EXCLUDED.selected,
			report = EXCLUDED.report
	`, row.runID, row.startedAt, row.start, row.end, row.accuracy, row.baseline,
		row.trainRows, row.testRows, row.policy, row.selected, row.report)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rep.RunID, err)
	}
	return nil
}

type run struct {
	runID     string
	startedAt time.Time
	start     time.Time
	end       time.Time
	accuracy  float64
	baseline  float64
	trainRows int
	testRows  int
	policy    string
	selected  []string
	report    []byte
}

func runRow(rep *pipeline.Report) (run, error) {
	report, err := json.Marshal(rep)
	if err != nil {
		return run{}, fmt.Errorf("encode report %s: %w", rep.RunID, err)
	}
	r := run{
		runID:     rep.RunID,
		startedAt: rep.StartedAt.UTC(),
		start:     dateTime(rep.Start),
		end:       dateTime(rep.End),
		policy:    string(rep.LabelPolicy),
		selected:  []string{},
		report:    report,
	}
	if rep.Selection != nil {
		r.selected = append(r.selected, rep.Selection.Selected...)
	}
	if ev := rep.Evaluation; ev != nil {
		r.accuracy = ev.Accuracy
		r.baseline = ev.Baseline
		r.trainRows = ev.TrainRows
		r.testRows = ev.TestRows
	}
	return r, nil
}

// SaveFeatures upserts one row per date of tbl. It returns how many rows were
// stored; a failed row is logged and skipped.
func (s *Store) SaveFeatures(ctx context.Context, runID string, tbl *daily.Table) (int, error) {
	rows, err := featureRows(tbl)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, r := range rows {
		_, err := s.db.Exec(ctx, `
			INSERT INTO daily_features (service_date, run_id, reliability, label, features)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (service_date) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				reliability = EXCLUDED.reliability,
				label = EXCLUDED.label,
				features = EXCLUDED.features
		`, dateTime(r.date), runID, r.reliability, r.label, r.features)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			log.Printf("feature row %s insert failed: %v", r.date, err)
			continue
		}
		stored++
	}
	return stored, nil
}

type featureRow struct {
	date        civil.Date
	reliability *float64
	label       *string
	features    []byte
}

func featureRows(tbl *daily.Table) ([]featureRow, error) {
	var names []string
	for _, c := range tbl.Columns() {
		if c != labels.Column && c != daily.ReliabilityColumn {
			names = append(names, c)
		}
	}

	out := make([]featureRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		vals := make(map[string]daily.Value, len(names))
		for _, n := range names {
			vals[n] = tbl.Get(n, i)
		}
		data, err := json.Marshal(vals)
		if err != nil {
			return nil, fmt.Errorf("encode features %s: %w", tbl.Date(i), err)
		}

		r := featureRow{
			date:        tbl.Date(i),
			reliability: tbl.Get(daily.ReliabilityColumn, i).Ptr(),
			features:    data,
		}
		if c := labels.FromValue(tbl.Get(labels.Column, i)); c != labels.Unlabeled {
			name := c.String()
			r.label = &name
		}
		out = append(out, r)
	}
	return out, nil
}

// InsertAlert stores one alert row. It reports false when the row was
// already present.
func (s *Store) InsertAlert(ctx context.Context, a sources.RawAlert) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO alerts_raw (alert_id, created_datetime, active_start, active_end,
			cause, effect, severity, route_id, stop_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (alert_id, route_id, stop_id) DO NOTHING
	`, a.AlertID, a.CreatedDatetime, a.ActiveStart, a.ActiveEnd,
		a.Cause, a.Effect, a.Severity, a.RouteID, a.StopID)
	if err != nil {
		return false, fmt.Errorf("insert alert %s: %w", a.AlertID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReadAlerts returns every stored alert. It satisfies sources.AlertReader.
func (s *Store) ReadAlerts(ctx context.Context) ([]sources.RawAlert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT alert_id, created_datetime, active_start, active_end,
			cause, effect, severity, route_id, stop_id
		FROM alerts_raw
		ORDER BY created_datetime, alert_id, route_id, stop_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []sources.RawAlert
	for rows.Next() {
		var a sources.RawAlert
		if err := rows.Scan(&a.AlertID, &a.CreatedDatetime, &a.ActiveStart, &a.ActiveEnd,
			&a.Cause, &a.Effect, &a.Severity, &a.RouteID, &a.StopID); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	return out, nil
}

func dateTime(d civil.Date) time.Time {
	if !d.IsValid() {
		return time.Time{}
	}
	return d.In(time.UTC)
}
