package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sweeney/temp-monitor/internal/chart"
	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/status"
	"github.com/sweeney/temp-monitor/internal/stream"
	"github.com/sweeney/temp-monitor/internal/telemetry"
	"github.com/sweeney/temp-monitor/internal/web"
)

type nopController struct{}

func (nopController) Do(context.Context, session.Command) error { return nil }

// TestIntegrationFullFlow streams events from a websocket server through the
// session into the HTTP status surface.
func TestIntegrationFullFlow(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	event := func(device string, sec int, temp string) string {
		return fmt.Sprintf(`{"dataschema":%q,"device":%q,"time":%q,"data":{"temp":%s}}`,
			telemetry.Schema, device, start.Add(time.Duration(sec)*time.Second).Format(time.RFC3339), temp)
	}
	frames := []string{
		event("kitchen", 0, "20.5"),
		event("garage", 1, "8"),
		`{"dataschema":"urn:other"}`,                  // schema mismatch, not counted
		event("kitchen", 2, `"21.5"`),                 // numeric string accepted
		event("garage", 3, "true"),                    // wrong value type
		`{"dataschema":"urn:drogue:iot:temperature"}`, // missing device
		event("kitchen", 4, "22.5"),
	}

	upgrader := websocket.Upgrader{}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer wsSrv.Close()
	endpoint := "ws" + strings.TrimPrefix(wsSrv.URL, "http")

	sess := session.New(session.Config{
		Endpoint:         endpoint,
		Capacity:         2,
		AverageWindow:    3,
		ValidateEndpoint: stream.ValidateEndpoint,
	})
	tracker := status.NewTracker(start, status.Config{})
	dialer := &stream.Router{Websocket: stream.NewWebsocketDialer(5*time.Second, zerolog.Nop())}

	// Simulate the event loop
	if err := sess.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialer.Dial(ctx, sess.Endpoint())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := sess.Established(); err != nil {
		t.Fatalf("established: %v", err)
	}

	for raw := range conn.Messages() {
		sess.HandleData(raw)
		tracker.Publish(sess.Status(), sess.Project())
	}
	if _, err := sess.Closed(conn.Err()); err != nil {
		t.Fatalf("closed: %v", err)
	}
	tracker.SetStatus(sess.Status())

	srv := web.New(":0", tracker, nopController{}, web.Options{})
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	// Status JSON
	resp, err := http.Get(httpSrv.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	var sj status.StatusJSON
	err = json.NewDecoder(resp.Body).Decode(&sj)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}

	if sj.Status.State != "Disconnected" {
		t.Errorf("state: got %q, want Disconnected", sj.Status.State)
	}
	if sj.Status.Counts.Accepted != 4 {
		t.Errorf("accepted: got %d, want 4", sj.Status.Counts.Accepted)
	}
	if sj.Status.Counts.Received != 6 {
		t.Errorf("received: got %d, want 6", sj.Status.Counts.Received)
	}
	if sj.Status.Counts.Rejected["value_type"] != 1 || sj.Status.Counts.Rejected["missing_field"] != 1 {
		t.Errorf("rejected: got %v", sj.Status.Counts.Rejected)
	}
	if sj.Status.Reading == nil {
		t.Fatal("expected a reading")
	}
	// Window of 3 over 20.5, 8, 21.5, 22.5 keeps the last three.
	if got, want := sj.Status.Reading.Average, (8+21.5+22.5)/3; got != want {
		t.Errorf("average: got %v, want %v", got, want)
	}

	// Chart JSON: capacity 2 evicts the oldest kitchen point.
	resp, err = http.Get(httpSrv.URL + "/chart.json")
	if err != nil {
		t.Fatalf("GET /chart.json: %v", err)
	}
	var dj chart.DatasetJSON
	err = json.NewDecoder(resp.Body).Decode(&dj)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode chart: %v", err)
	}

	if len(dj.Series) != 2 {
		t.Fatalf("series: got %d, want 2", len(dj.Series))
	}
	kitchen := dj.Series[0]
	if kitchen.Label != "kitchen" || len(kitchen.Points) != 2 {
		t.Fatalf("kitchen: got %s with %d points", kitchen.Label, len(kitchen.Points))
	}
	if kitchen.Points[0].Value != 21.5 || kitchen.Points[1].Value != 22.5 {
		t.Errorf("kitchen values: got %v, %v", kitchen.Points[0].Value, kitchen.Points[1].Value)
	}
	if dj.Series[1].Color == kitchen.Color {
		t.Error("devices should get distinct colors")
	}
	if dj.TimeExtent == nil || dj.TimeExtent.Start != "2026-01-01T12:00:01Z" || dj.TimeExtent.End != "2026-01-01T12:00:04Z" {
		t.Errorf("extent: got %+v", dj.TimeExtent)
	}

	// Chart image renders while data is buffered.
	resp, err = http.Get(httpSrv.URL + "/chart.png")
	if err != nil {
		t.Fatalf("GET /chart.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("chart.png: got %d, want 200", resp.StatusCode)
	}
}
