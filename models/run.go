package models

import (
	"encoding/json"
	"time"
)

// ModelRun is one pipeline run. Report holds the full run summary.
type ModelRun struct {
	RunID       string          `gorm:"column:run_id;primaryKey" json:"run_id"`
	StartedAt   time.Time       `gorm:"column:started_at" json:"started_at"`
	DataStart   time.Time       `gorm:"column:data_start;type:date" json:"data_start"`
	DataEnd     time.Time       `gorm:"column:data_end;type:date" json:"data_end"`
	Accuracy    float64         `gorm:"column:accuracy" json:"accuracy"`
	Baseline    float64         `gorm:"column:baseline" json:"baseline_accuracy"`
	TrainRows   int             `gorm:"column:train_rows" json:"train_rows"`
	TestRows    int             `gorm:"column:test_rows" json:"test_rows"`
	LabelPolicy string          `gorm:"column:label_policy" json:"label_policy"`
	Report      json.RawMessage `gorm:"column:report;type:jsonb" json:"report,omitempty"`
}

func (ModelRun) TableName() string { return "model_runs" }
