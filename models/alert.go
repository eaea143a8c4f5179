package models

import "time"

type AlertRaw struct {
	AlertID         string    `gorm:"column:alert_id;primaryKey" json:"alert_id"`
	CreatedDatetime string    `gorm:"column:created_datetime" json:"created_datetime"`
	ActiveStart     string    `gorm:"column:active_start" json:"active_start"`
	ActiveEnd       string    `gorm:"column:active_end" json:"active_end"`
	Cause           string    `gorm:"column:cause" json:"cause"`
	Effect          string    `gorm:"column:effect" json:"effect"`
	Severity        *float64  `gorm:"column:severity" json:"severity"`
	RouteID         string    `gorm:"column:route_id;primaryKey" json:"route_id"`
	StopID          string    `gorm:"column:stop_id;primaryKey" json:"stop_id"`
	ReceivedAt      time.Time `gorm:"column:received_at" json:"received_at"`
}

func (AlertRaw) TableName() string { return "alerts_raw" }
