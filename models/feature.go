package models

import (
	"encoding/json"
	"time"
)

type DailyFeature struct {
	ServiceDate time.Time       `gorm:"column:service_date;type:date;primaryKey" json:"service_date"`
	RunID       string          `gorm:"column:run_id" json:"run_id"`
	Reliability *float64        `gorm:"column:reliability" json:"reliability"`
	Label       *string         `gorm:"column:label" json:"label"`
	Features    json.RawMessage `gorm:"column:features;type:jsonb" json:"features"`
}

func (DailyFeature) TableName() string { return "daily_features" }
