package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

func watchDefs() *state.Defs {
	return &state.Defs{
		Scenario: state.ScenarioDef{ID: "watch", Title: "Watch", MaxSteps: 5},
		Kinds: map[string]types.KindDef{
			"probe": {Name: "probe", Statuses: []string{"idle", "active"}, Initial: "idle"},
		},
		Entities: []types.EntityDef{{ID: "pr-1", Kind: "probe"}},
		Axes:     []types.AxisDef{{Name: "candor"}},
		Score:    types.ScoreDef{Base: 7},
	}
}

// observer spins up a server over one started session.
func observer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemStore())
	mgr.Register(watchDefs())
	eng, err := mgr.Start("watch", "s1", types.VariantHardRules, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	eng.Session.Log = append(eng.Session.Log, types.ActionRecord{
		Step: 0, Seq: 0, Action: "do-nothing", Outcome: types.OutcomeApplied,
		AxisDeltas: map[string]float64{"candor": -1},
	})
	if err := mgr.Commit(eng); err != nil {
		t.Fatal(err)
	}
	return NewServer(mgr, NewLogger()), mgr
}

func TestHandleList(t *testing.T) {
	srv, _ := observer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("ids = %v", ids)
	}
}

func TestHandleSession(t *testing.T) {
	srv, _ := observer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/s1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var s types.SessionState
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.SessionID != "s1" || s.Variant != types.VariantHardRules || s.Seed != 3 {
		t.Errorf("session = %+v", s)
	}

	resp404, err := http.Get(ts.URL + "/sessions/ghost")
	if err != nil {
		t.Fatal(err)
	}
	defer resp404.Body.Close()
	if resp404.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d", resp404.StatusCode)
	}
}

func TestHandleScore(t *testing.T) {
	srv, _ := observer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/s1/score")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var full score.Full
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		t.Fatal(err)
	}
	if full.VisibleScore != 7 {
		t.Errorf("VisibleScore = %v", full.VisibleScore)
	}
	if full.HiddenFingerprint["candor"] != -1 {
		t.Errorf("fingerprint = %v", full.HiddenFingerprint)
	}
}

func TestHandleLog(t *testing.T) {
	srv, _ := observer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/s1/log")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var log []types.ActionRecord
	if err := json.NewDecoder(resp.Body).Decode(&log); err != nil {
		t.Fatal(err)
	}
	if len(log) != 1 || log[0].Action != "do-nothing" {
		t.Errorf("log = %+v", log)
	}
}

func TestMutationsRejected(t *testing.T) {
	srv, _ := observer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/sessions/s1", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("POST accepted on a read-only surface")
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, _ := observer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration races the broadcast; give the hub a beat.
	time.Sleep(50 * time.Millisecond)

	want := LogEvent{
		SessionID: "s1",
		Record:    types.ActionRecord{Step: 1, Action: "advance", Outcome: types.OutcomeApplied},
	}
	go srv.hub.BroadcastEvent(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got LogEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || got.Record.Action != "advance" {
		t.Errorf("event = %+v", got)
	}
}

func TestLogPollerBroadcastsNewRecords(t *testing.T) {
	srv, mgr := observer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Register before the first poll so the replayed record reaches us.
	time.Sleep(50 * time.Millisecond)
	srv.hub.StartLogPoller(ctx, mgr.Store, 10*time.Millisecond)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got LogEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || got.Record.Action != "do-nothing" {
		t.Errorf("event = %+v", got)
	}
}
