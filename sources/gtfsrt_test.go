package sources

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"google.golang.org/protobuf/proto"
)

func feed(t *testing.T) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1675324800), // 2023-02-02T08:00:00Z
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("A-100"),
				Alert: &gtfs.Alert{
					ActivePeriod: []*gtfs.TimeRange{{Start: proto.Uint64(1675242000)}}, // 2023-02-01T09:00:00Z
					InformedEntity: []*gtfs.EntitySelector{
						{RouteId: proto.String("Green-B"), StopId: proto.String("place-bucen")},
						{RouteId: proto.String("Green-C")},
					},
					Cause:  gtfs.Alert_CONSTRUCTION.Enum(),
					Effect: gtfs.Alert_SIGNIFICANT_DELAYS.Enum(),
				},
			},
			{Id: proto.String("vehicle-1")},
		},
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestDecodeAlertFeed(t *testing.T) {
	rows, err := DecodeAlertFeed(feed(t))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "A-100", rows[0].AlertID)
	assert.Equal(t, "1675324800", rows[0].CreatedDatetime)
	assert.Equal(t, "1675242000", rows[0].ActiveStart)
	assert.Empty(t, rows[0].ActiveEnd)
	assert.Equal(t, "CONSTRUCTION", rows[0].Cause)
	assert.Equal(t, "SIGNIFICANT_DELAYS", rows[0].Effect)
	assert.Equal(t, "Green-B", rows[0].RouteID)
	assert.Equal(t, "place-bucen", rows[0].StopID)
	assert.Equal(t, "Green-C", rows[1].RouteID)
	assert.Empty(t, rows[1].StopID)
}

func TestDecodedFeedFeedsTheAlertsLoader(t *testing.T) {
	rows, err := DecodeAlertFeed(feed(t))
	require.NoError(t, err)

	res, err := (&AlertsLoader{Reader: &fakeAlertReader{rows: rows}}).Load(context.Background())
	require.NoError(t, err)
	tbl := reduce(t, res)

	i, ok := tbl.Index(civil.Date{Year: 2023, Month: 2, Day: 1})
	require.True(t, ok)
	assert.Equal(t, daily.Some(2), tbl.Get("alerts.total_alerts", i))
}

func TestDecodeAlertFeedRejectsGarbage(t *testing.T) {
	_, err := DecodeAlertFeed([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
