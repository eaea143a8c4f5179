package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/labels"
	"github.com/wesleyyjpark/506MBTAProject/model"
	"github.com/wesleyyjpark/506MBTAProject/pipeline"
	"github.com/wesleyyjpark/506MBTAProject/selection"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

type call struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []call
	tag   string
	// failAt makes the n-th Exec (1-based) fail.
	failAt int
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	if f.failAt == len(f.calls) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

var feb1 = civil.Date{Year: 2023, Month: 2, Day: 1}

func featureTable(t *testing.T) *daily.Table {
	t.Helper()
	tbl, err := daily.NewTable(daily.DenseRange(feb1, feb1.AddDays(2)),
		daily.Column{Name: "rel_lag_1", Values: []daily.Value{daily.Unknown, daily.Some(80), daily.Some(90)}},
		daily.Column{Name: labels.Column, Values: []daily.Value{labels.High.Value(), daily.Unknown, labels.Low.Value()}},
		daily.Column{Name: daily.ReliabilityColumn, Values: []daily.Value{daily.Some(90), daily.Unknown, daily.Some(70)}},
	)
	require.NoError(t, err)
	return tbl
}

func TestFeatureRows(t *testing.T) {
	rows, err := featureRows(featureTable(t))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, feb1, rows[0].date)
	require.NotNil(t, rows[0].label)
	assert.Equal(t, "High", *rows[0].label)
	require.NotNil(t, rows[0].reliability)
	assert.Equal(t, 90.0, *rows[0].reliability)
	assert.JSONEq(t, `{"rel_lag_1":null}`, string(rows[0].features))

	assert.Nil(t, rows[1].label)
	assert.Nil(t, rows[1].reliability)
	assert.JSONEq(t, `{"rel_lag_1":80}`, string(rows[1].features))
}

func TestSaveFeaturesCountsStoredRows(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1", failAt: 2}
	n, err := New(db).SaveFeatures(context.Background(), "run-1", featureTable(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, db.calls, 3)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (service_date) DO UPDATE")
	assert.Equal(t, "run-1", db.calls[0].args[1])
	assert.Equal(t, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), db.calls[0].args[0])
}

func TestSaveRun(t *testing.T) {
	rep := &pipeline.Report{
		RunID:       "7f6c",
		StartedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Start:       civil.Date{Year: 2019, Month: 1, Day: 1},
		End:         civil.Date{Year: 2023, Month: 12, Day: 31},
		LabelPolicy: labels.Fixed,
		Selection:   &selection.Selection{Selected: []string{"rel_lag_1", "snow_x_classes"}},
		Evaluation:  &model.Evaluation{Accuracy: 0.61, Baseline: 0.44, TrainRows: 1400, TestRows: 365},
	}
	db := &fakeDB{tag: "INSERT 0 1"}
	require.NoError(t, New(db).SaveRun(context.Background(), rep))
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	assert.Equal(t, "7f6c", args[0])
	assert.Equal(t, 0.61, args[4])
	assert.Equal(t, 365, args[7])
	assert.Equal(t, "fixed", args[8])
	assert.Equal(t, []string{"rel_lag_1", "snow_x_classes"}, args[9])

	var back map[string]any
	require.NoError(t, json.Unmarshal(args[10].([]byte), &back))
	assert.Equal(t, "7f6c", back["run_id"])
}

func TestSaveRunWithoutEvaluation(t *testing.T) {
	r, err := runRow(&pipeline.Report{RunID: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, r.selected)
	assert.True(t, r.start.IsZero())
	assert.Zero(t, r.accuracy)
}

func TestInsertAlert(t *testing.T) {
	sev := 7.0
	a := sources.RawAlert{AlertID: "A1", CreatedDatetime: "2023-05-05T08:00:00Z", RouteID: "Green-B", Severity: &sev}

	db := &fakeDB{tag: "INSERT 0 1"}
	ok, err := New(db).InsertAlert(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.Contains(db.calls[0].sql, "DO NOTHING"))

	db = &fakeDB{tag: "INSERT 0 0"}
	ok, err = New(db).InsertAlert(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate rows are ignored")

	db = &fakeDB{failAt: 1}
	_, err = New(db).InsertAlert(context.Background(), a)
	assert.Error(t, err)
}

func TestMigrateRunsSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).Migrate(context.Background()))
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS daily_features")
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS alerts_raw")
}
