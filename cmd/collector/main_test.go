package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyyjpark/506MBTAProject/sources"
	"google.golang.org/protobuf/proto"
)

type memStore struct {
	rows map[string]sources.RawAlert
	err  error
}

func (m *memStore) InsertAlert(_ context.Context, a sources.RawAlert) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := a.AlertID + "|" + a.RouteID + "|" + a.StopID
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = a
	return true, nil
}

type recorder struct{ channels []string }

func (r *recorder) Publish(_ context.Context, channel string, _ any) error {
	r.channels = append(r.channels, channel)
	return nil
}

func TestAlertPayloadJSON(t *testing.T) {
	raw := `{"alert_id":"A-1","created_datetime":"2023-02-14T07:55:00Z","cause":"WEATHER","effect":"SIGNIFICANT_DELAYS","severity":7,"route_id":"Green-C","stop_id":"place-clmnl"}`
	var p AlertPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "A-1", p.AlertID)
	assert.Equal(t, "WEATHER", p.Cause)
	require.NotNil(t, p.Severity)
	assert.Equal(t, 7.0, *p.Severity)

	var bad AlertPayload
	assert.Error(t, json.Unmarshal([]byte(`{not valid json}`), &bad))
}

func TestToRawAlert(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		payload     AlertPayload
		ok          bool
		wantCreated string
	}{
		{"complete", AlertPayload{AlertID: "A", RouteID: "Green-B", Created: "2023-05-05 08:00:00"}, true, "2023-05-05 08:00:00"},
		{"missing created", AlertPayload{AlertID: "A", RouteID: "Green-B"}, true, "2024-01-02T03:04:05Z"},
		{"bad created", AlertPayload{AlertID: "A", RouteID: "Green-B", Created: "soon"}, true, "2024-01-02T03:04:05Z"},
		{"missing id", AlertPayload{RouteID: "Green-B"}, false, ""},
		{"missing route", AlertPayload{AlertID: "A"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := toRawAlert(tt.payload, now)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.wantCreated, a.CreatedDatetime)
				assert.Equal(t, tt.payload.RouteID, a.RouteID)
			}
		})
	}
}

func TestProcessMessage(t *testing.T) {
	st := &memStore{rows: map[string]sources.RawAlert{}}
	pub := &recorder{}
	ctx := context.Background()
	msg := []byte(`{"alert_id":"A-1","created_datetime":"2023-02-14T07:55:00Z","route_id":"Green-C"}`)

	stored := testutil.ToFloat64(msgsStored)
	dup := testutil.ToFloat64(msgsDuplicate)
	failed := testutil.ToFloat64(msgsFailed)

	processMessage(ctx, st, pub, msg)
	processMessage(ctx, st, pub, msg)
	processMessage(ctx, st, pub, []byte(`{"route_id":"Green-C"}`))
	processMessage(ctx, st, pub, []byte(`nope`))

	assert.Len(t, st.rows, 1)
	assert.Equal(t, []string{alertsChannel}, pub.channels)
	assert.Equal(t, stored+1, testutil.ToFloat64(msgsStored))
	assert.Equal(t, dup+1, testutil.ToFloat64(msgsDuplicate))
	assert.Equal(t, failed+2, testutil.ToFloat64(msgsFailed))

	processMessage(ctx, &memStore{err: errors.New("db down")}, pub, msg)
	assert.Equal(t, failed+3, testutil.ToFloat64(msgsFailed))
}

func TestProcessFeedMessage(t *testing.T) {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0"), Timestamp: proto.Uint64(1675324800)},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("A-7"),
			Alert: &gtfs.Alert{
				InformedEntity: []*gtfs.EntitySelector{
					{RouteId: proto.String("Green-D"), StopId: proto.String("place-kencl")},
					{StopId: proto.String("place-kencl")},
				},
				Effect: gtfs.Alert_DETOUR.Enum(),
			},
		}},
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)

	rows, err := decodeAlerts(data, time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 1, "selectors without a route are dropped")
	assert.Equal(t, "Green-D", rows[0].RouteID)
	assert.Equal(t, "DETOUR", rows[0].Effect)

	st := &memStore{rows: map[string]sources.RawAlert{}}
	processMessage(context.Background(), st, &recorder{}, data)
	assert.Len(t, st.rows, 1)
}
