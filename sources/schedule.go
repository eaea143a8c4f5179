package sources

import (
	"context"
	"errors"
	"os"

	"github.com/wesleyyjpark/506MBTAProject/schedule"
)

// ScheduleLoader reads the class timetable. With no path configured the
// built-in timetable is used.
type ScheduleLoader struct {
	Path string
}

func (l *ScheduleLoader) Name() string { return Schedule }

func (l *ScheduleLoader) Load(ctx context.Context) (*Result, error) {
	if l.Path == "" {
		return &Result{Schedule: schedule.Default()}, nil
	}
	p, err := schedule.LoadFile(l.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, unavailable(Schedule, l.Path, err)
	case err != nil:
		return nil, mismatch(Schedule, l.Path, "%v", err)
	}
	return &Result{Schedule: p}, nil
}
