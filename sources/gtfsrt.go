package sources

import (
	"fmt"
	"strconv"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DecodeAlertFeed flattens the alerts of a GTFS-realtime feed into one row
// per informed entity. Timestamps are kept as POSIX seconds. Entities that
// carry no alert are skipped.
func DecodeAlertFeed(data []byte) ([]RawAlert, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("%w: gtfs-realtime feed: %v", ErrSchemaMismatch, err)
	}

	created := ""
	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		created = strconv.FormatUint(ts, 10)
	}

	var out []RawAlert
	for _, e := range feed.GetEntity() {
		a := e.GetAlert()
		if a == nil {
			continue
		}
		base := RawAlert{
			AlertID:         e.GetId(),
			CreatedDatetime: created,
			Cause:           a.GetCause().String(),
			Effect:          a.GetEffect().String(),
		}
		if periods := a.GetActivePeriod(); len(periods) > 0 {
			base.ActiveStart = posix(periods[0].GetStart())
			base.ActiveEnd = posix(periods[0].GetEnd())
		}
		if base.CreatedDatetime == "" {
			base.CreatedDatetime = base.ActiveStart
		}
		for _, sel := range a.GetInformedEntity() {
			row := base
			row.RouteID = sel.GetRouteId()
			row.StopID = sel.GetStopId()
			out = append(out, row)
		}
	}
	return out, nil
}

func posix(s uint64) string {
	if s == 0 {
		return ""
	}
	return strconv.FormatUint(s, 10)
}
