package sources

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/schedule"
	"golang.org/x/sync/errgroup"
)

const (
	Reliability = "reliability"
	Weather     = "weather"
	Schedule    = "schedule"
	Performance = "performance"
	Alerts      = "alerts"
)

// StopDay is a per-stop daily observation kept for station-level views.
type StopDay struct {
	Date   civil.Date  `json:"date"`
	StopID string      `json:"stop_id"`
	Count  int         `json:"count"`
	Mean   daily.Value `json:"mean"`
}

// Result is what a loader hands to the merge stage. Partial is nil for the
// schedule source, which yields a weekday pattern instead.
type Result struct {
	Partial    *daily.Partial
	Schedule   *schedule.Pattern
	StopAlerts []StopDay
	StopDwell  []StopDay
}

type Loader interface {
	Name() string
	Load(ctx context.Context) (*Result, error)
}

type Status struct {
	Name   string `json:"name"`
	Used   bool   `json:"used"`
	Reason string `json:"reason,omitempty"`
}

// Set collects the loaded sources of one run.
type Set struct {
	Results map[string]*Result
	Status  []Status
}

func (s *Set) Get(name string) (*Result, bool) {
	r, ok := s.Results[name]
	return r, ok
}

func (s *Set) Partials() []*daily.Partial {
	var out []*daily.Partial
	for _, st := range s.Status {
		if r, ok := s.Results[st.Name]; ok && r.Partial != nil {
			out = append(out, r.Partial)
		}
	}
	return out
}

// Pattern returns the loaded schedule, or the built-in one.
func (s *Set) Pattern() *schedule.Pattern {
	if r, ok := s.Results[Schedule]; ok && r.Schedule != nil {
		return r.Schedule
	}
	return schedule.Default()
}

// LoadAll runs every loader concurrently. An unavailable optional source is
// logged and recorded; any other failure cancels the rest and is returned.
func LoadAll(ctx context.Context, required []Loader, optional []Loader) (*Set, error) {
	all := append(append([]Loader(nil), required...), optional...)
	results := make([]*Result, len(all))
	skipped := make([]error, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range all {
		isOptional := i >= len(required)
		g.Go(func() error {
			res, err := l.Load(gctx)
			if err != nil {
				if isOptional && errors.Is(err, ErrSourceUnavailable) {
					skipped[i] = err
					return nil
				}
				return fmt.Errorf("load %s: %w", l.Name(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{Results: make(map[string]*Result, len(all))}
	for i, l := range all {
		if skipped[i] != nil {
			log.Printf("warning: skipping %s: %v", l.Name(), skipped[i])
			set.Status = append(set.Status, Status{Name: l.Name(), Reason: skipped[i].Error()})
			continue
		}
		set.Results[l.Name()] = results[i]
		set.Status = append(set.Status, Status{Name: l.Name(), Used: true})
	}
	return set, nil
}

// RouteFilter matches route ids containing any configured fragment.
type RouteFilter []string

func (f RouteFilter) Match(route string) bool {
	if len(f) == 0 {
		return true
	}
	for _, frag := range f {
		if strings.Contains(route, frag) {
			return true
		}
	}
	return false
}
