package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wesleyyjpark/506MBTAProject/config"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/services"
	"github.com/wesleyyjpark/506MBTAProject/sources"
	"github.com/wesleyyjpark/506MBTAProject/store"
)

// AlertPayload is one service-alert event in JSON form. An alert naming
// several stops arrives once per stop.
type AlertPayload struct {
	AlertID     string   `json:"alert_id"`
	Created     string   `json:"created_datetime"`
	ActiveStart string   `json:"active_start"`
	ActiveEnd   string   `json:"active_end"`
	Cause       string   `json:"cause"`
	Effect      string   `json:"effect"`
	Severity    *float64 `json:"severity"`
	RouteID     string   `json:"route_id"`
	StopID      string   `json:"stop_id"`
}

const alertsChannel = "reliability:alerts"

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenline_collector_messages_received_total",
		Help: "Total number of MQTT alert messages received by collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenline_collector_messages_stored_total",
		Help: "Total number of alerts inserted into alerts_raw.",
	})
	msgsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenline_collector_messages_duplicate_total",
		Help: "Total number of alerts already present in alerts_raw.",
	})
	msgsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenline_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
	})
)

type alertStore interface {
	InsertAlert(ctx context.Context, a sources.RawAlert) (bool, error)
}

type notifier interface {
	Publish(ctx context.Context, channel string, message any) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	pool, err := store.Connect(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	cache := services.NewCacheFromClient(nil)
	if cfg.Redis.Enabled {
		if cache, err = services.NewCacheService(cfg.Redis); err != nil {
			log.Printf("redis unavailable, skipping Redis: %v", err)
		}
	}
	defer cache.Close()

	go serveHTTP(cfg.Metrics.Addr)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID("collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		processMessage(ctx, st, cache, message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqtt subscribe error: %v", token.Error())
			return
		}
		log.Printf("collector subscribed to topic=%s", cfg.MQTT.Topic)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatalf("mqtt connection failed: %v", token.Error())
	}

	log.Printf("collector running, mqtt=%s db=ok metrics=%s", cfg.MQTT.URL, cfg.Metrics.Addr)

	<-ctx.Done()
	log.Printf("collector shutting down")
	client.Disconnect(250)
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("metrics server failed: %v", err)
	}
}

// toRawAlert validates a payload. A missing or unparseable creation time
// is replaced by now.
func toRawAlert(p AlertPayload, now time.Time) (sources.RawAlert, bool) {
	if p.AlertID == "" || p.RouteID == "" {
		return sources.RawAlert{}, false
	}
	created := p.Created
	if _, ok := daily.ParseTimestamp(created); !ok {
		created = now.UTC().Format(time.RFC3339)
	}
	return sources.RawAlert{
		AlertID:         p.AlertID,
		CreatedDatetime: created,
		ActiveStart:     p.ActiveStart,
		ActiveEnd:       p.ActiveEnd,
		Cause:           p.Cause,
		Effect:          p.Effect,
		Severity:        p.Severity,
		RouteID:         p.RouteID,
		StopID:          p.StopID,
	}, true
}

// decodeAlerts accepts either one JSON alert or a GTFS-realtime feed.
func decodeAlerts(payloadRaw []byte, now time.Time) ([]sources.RawAlert, error) {
	if trimmed := bytes.TrimSpace(payloadRaw); len(trimmed) > 0 && trimmed[0] == '{' {
		var payload AlertPayload
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		alert, ok := toRawAlert(payload, now)
		if !ok {
			return nil, errors.New("missing required fields in payload")
		}
		return []sources.RawAlert{alert}, nil
	}

	rows, err := sources.DecodeAlertFeed(payloadRaw)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if r.AlertID != "" && r.RouteID != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func processMessage(ctx context.Context, st alertStore, pub notifier, payloadRaw []byte) {
	msgsReceived.Inc()

	alerts, err := decodeAlerts(payloadRaw, time.Now())
	if err != nil {
		msgsFailed.Inc()
		log.Printf("rejected message: %v", err)
		return
	}

	for _, alert := range alerts {
		inserted, err := st.InsertAlert(ctx, alert)
		if err != nil {
			msgsFailed.Inc()
			log.Printf("db insert failed: %v", err)
			continue
		}
		if !inserted {
			msgsDuplicate.Inc()
			continue
		}
		msgsStored.Inc()

		if err := pub.Publish(ctx, alertsChannel, alert); err != nil {
			log.Printf("redis publish failed: %v", err)
		}
	}
}
