package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/economy"
	"github.com/talgya/mobility/internal/engine"
	"github.com/talgya/mobility/internal/persistence"
)

const testAdminKey = "secret"

// newTestServer builds a server over a 20-agent simulation. Options run
// before the handler is built so no field changes while requests are served.
func newTestServer(t *testing.T, options ...func(*Server)) (*Server, *httptest.Server) {
	t.Helper()
	sim := engine.NewSimulation(engine.Options{Agents: 20, Seed: 1}, economy.DefaultCatalog())
	eng := engine.NewEngine(sim)
	eng.Interval = 0

	s := &Server{
		Sim:               sim,
		Eng:               eng,
		AdminKey:          testAdminKey,
		DefaultRounds:     5,
		NarrativesPerHour: 10,
	}
	for _, opt := range options {
		opt(s)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.stopEngine()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postControl(t *testing.T, ts *httptest.Server, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/control", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST control: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode control response: %v", err)
		}
	}
	return resp.StatusCode, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatus(t *testing.T) {
	s, ts := newTestServer(t)
	s.Sim.RunRound()

	var status map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if status["round"] != float64(1) || status["agents"] != float64(20) || status["policy"] != "pressure" {
		t.Errorf("status = %v", status)
	}
	if status["running"] != false || status["llm"] != false {
		t.Errorf("status = %v", status)
	}
	if usage, ok := status["llm_usage"].(map[string]any); !ok || usage["calls"] != float64(0) {
		t.Errorf("llm_usage = %v", status["llm_usage"])
	}
	if _, ok := status["run_id"]; ok {
		t.Error("run_id reported without an archive")
	}
}

func TestAgentsFilter(t *testing.T) {
	s, ts := newTestServer(t)

	var all []agents.AgentSummary
	getJSON(t, ts.URL+"/api/v1/agents", &all)
	if len(all) != 20 {
		t.Fatalf("got %d agents, want 20", len(all))
	}

	var low []agents.AgentSummary
	getJSON(t, ts.URL+"/api/v1/agents?class=low", &low)
	want := 0
	for _, a := range s.Sim.Snapshot().Agents {
		if a.Class == agents.WealthLow {
			want++
		}
	}
	if len(low) != want {
		t.Errorf("got %d Low agents, want %d", len(low), want)
	}
	for _, a := range low {
		if a.Class != agents.WealthLow {
			t.Errorf("agent %d has class %s", a.ID, a.Class)
		}
	}

	if code := getJSON(t, ts.URL+"/api/v1/agents?class=royal", nil); code != http.StatusBadRequest {
		t.Errorf("unknown class code = %d, want 400", code)
	}
	if code := getJSON(t, ts.URL+"/api/v1/agents?alive=maybe", nil); code != http.StatusBadRequest {
		t.Errorf("bad alive filter code = %d, want 400", code)
	}
}

func TestAgentRoutes(t *testing.T) {
	s, ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.Sim.RunRound()
	}

	var detail engine.AgentDetail
	if code := getJSON(t, ts.URL+"/api/v1/agent/2", &detail); code != http.StatusOK {
		t.Fatalf("agent code %d", code)
	}
	if detail.ID != 2 || detail.Name == "" {
		t.Errorf("detail = %+v", detail.AgentSummary)
	}

	var history []agents.HistoryEntry
	if code := getJSON(t, ts.URL+"/api/v1/agent/2/history", &history); code != http.StatusOK {
		t.Fatalf("history code %d", code)
	}
	if len(history) != len(detail.History) || len(history) == 0 {
		t.Errorf("history has %d entries, detail %d", len(history), len(detail.History))
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/agent/", http.StatusBadRequest},
		{"/api/v1/agent/abc", http.StatusBadRequest},
		{"/api/v1/agent/999", http.StatusNotFound},
		{"/api/v1/agent/2/friends", http.StatusNotFound},
	}
	for _, tt := range tests {
		if code := getJSON(t, ts.URL+tt.path, nil); code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, code, tt.want)
		}
	}
}

func TestNarrativeDisabledAndRateLimited(t *testing.T) {
	_, ts := newTestServer(t, func(s *Server) { s.NarrativesPerHour = 2 })

	for i, want := range []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		resp, err := http.Post(ts.URL+"/api/v1/agent/1/narrative", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: code %d, want %d", i, resp.StatusCode, want)
		}
		if want == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
			t.Error("429 without Retry-After")
		}
	}
}

func TestEventsStatsAndTasks(t *testing.T) {
	s, ts := newTestServer(t)
	for i := 0; i < 4; i++ {
		s.Sim.RunRound()
	}

	var events []engine.Event
	getJSON(t, ts.URL+"/api/v1/events?category=round&limit=2", &events)
	if len(events) != 2 || events[0].Round != 2 || events[1].Round != 3 {
		t.Errorf("round events = %+v", events)
	}

	var stats engine.RoundStats
	getJSON(t, ts.URL+"/api/v1/stats", &stats)
	if stats.Round != 4 {
		t.Errorf("stats round = %d, want 4", stats.Round)
	}

	var history []engine.RoundStats
	getJSON(t, ts.URL+"/api/v1/stats/history", &history)
	if len(history) != 4 || history[0].Round != 1 {
		t.Errorf("stats history has %d rounds", len(history))
	}

	var tasks []agents.Task
	getJSON(t, ts.URL+"/api/v1/tasks", &tasks)
	if len(tasks) != len(economy.DefaultCatalog()) {
		t.Errorf("got %d tasks", len(tasks))
	}

	if code := getJSON(t, ts.URL+"/api/v1/runs", nil); code != http.StatusServiceUnavailable {
		t.Errorf("runs without archive = %d, want 503", code)
	}
}

func TestControlAuth(t *testing.T) {
	s, ts := newTestServer(t)

	if code, _ := postControl(t, ts, "", `{"command":"pause"}`); code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", code)
	}
	if code, _ := postControl(t, ts, "wrong", `{"command":"pause"}`); code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", code)
	}
	if code := getJSON(t, ts.URL+"/api/v1/control", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET control = %d, want 405", code)
	}
	if s.Eng.Paused() {
		t.Error("unauthorized pause took effect")
	}

	_, open := newTestServer(t, func(s *Server) { s.AdminKey = "" })
	if code, _ := postControl(t, open, "", `{"command":"pause"}`); code != http.StatusForbidden {
		t.Errorf("disabled admin = %d, want 403", code)
	}
}

func TestControlCommands(t *testing.T) {
	s, ts := newTestServer(t)

	code, out := postControl(t, ts, testAdminKey, `{"command":"start","agents":5000,"rounds":3,"seed":9}`)
	if code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	if out["agents"] != float64(500) || out["rounds"] != float64(3) {
		t.Errorf("start response = %v, want agents clamped to 500", out)
	}
	waitFor(t, func() bool { return s.Eng.Complete() && !s.Eng.Running() })
	if s.Sim.CurrentRound() != 3 || s.Sim.Options().Seed != 9 {
		t.Errorf("round %d seed %d after start", s.Sim.CurrentRound(), s.Sim.Options().Seed)
	}

	// Resuming a finished run does nothing.
	if code, _ := postControl(t, ts, testAdminKey, `{"command":"resume"}`); code != http.StatusOK {
		t.Fatalf("resume = %d", code)
	}
	time.Sleep(50 * time.Millisecond)
	if s.Sim.CurrentRound() != 3 {
		t.Errorf("resume advanced a complete run to round %d", s.Sim.CurrentRound())
	}

	code, out = postControl(t, ts, testAdminKey, `{"command":"reset","agents":7,"rounds":0}`)
	if code != http.StatusOK {
		t.Fatalf("reset = %d", code)
	}
	if s.Sim.Options().Agents != 7 || s.Sim.CurrentRound() != 0 || out["rounds"] != float64(5) {
		t.Errorf("after reset: agents %d round %d response %v", s.Sim.Options().Agents, s.Sim.CurrentRound(), out)
	}

	if code, _ := postControl(t, ts, testAdminKey, `{"command":"pause"}`); code != http.StatusOK {
		t.Fatalf("pause = %d", code)
	}
	if !s.Eng.Paused() {
		t.Error("engine not paused")
	}

	// Resume after a reset launches the new population.
	if code, _ := postControl(t, ts, testAdminKey, `{"command":"resume"}`); code != http.StatusOK {
		t.Fatalf("resume = %d", code)
	}
	waitFor(t, func() bool { return s.Sim.CurrentRound() == 5 && !s.Eng.Running() })

	if code, _ := postControl(t, ts, testAdminKey, `{"command":"explode"}`); code != http.StatusBadRequest {
		t.Errorf("unknown command = %d, want 400", code)
	}
	if code, _ := postControl(t, ts, testAdminKey, `not json`); code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", code)
	}
}

func TestControlArchivesRun(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, ts := newTestServer(t, func(s *Server) {
		s.Archive = persistence.NewRecorder(db, s.Sim)
		s.Eng.OnRound = func(snap engine.Snapshot) {
			if err := s.Archive.Record(snap); err != nil {
				t.Errorf("Record: %v", err)
			}
		}
	})

	if code, _ := postControl(t, ts, testAdminKey, `{"command":"start","agents":10,"rounds":4}`); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	waitFor(t, func() bool { return s.Eng.Complete() && !s.Eng.Running() })
	s.stopEngine()

	var runs []persistence.Run
	if code := getJSON(t, ts.URL+"/api/v1/runs", &runs); code != http.StatusOK {
		t.Fatalf("runs code %d", code)
	}
	if len(runs) != 1 || runs[0].Agents != 10 || runs[0].MaxRounds != 4 {
		t.Fatalf("runs = %+v", runs)
	}

	var history []engine.RoundStats
	getJSON(t, ts.URL+"/api/v1/stats/history?run="+runs[0].ID, &history)
	if len(history) != 4 {
		t.Errorf("archived stats history has %d rounds, want 4", len(history))
	}

	var status map[string]any
	getJSON(t, ts.URL+"/api/v1/status", &status)
	if status["run_id"] != runs[0].ID {
		t.Errorf("status run_id = %v, want %s", status["run_id"], runs[0].ID)
	}
}

func TestSpeed(t *testing.T) {
	s, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/speed", strings.NewReader(`{"speed":4}`))
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || s.Eng.Speed() != 4 {
		t.Errorf("speed POST = %d, speed %v", resp.StatusCode, s.Eng.Speed())
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/v1/speed", strings.NewReader(`{"speed":5000}`))
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range speed = %d, want 400", resp.StatusCode)
	}

	var got map[string]float64
	getJSON(t, ts.URL+"/api/v1/speed", &got)
	if got["speed"] != 4 {
		t.Errorf("GET speed = %v", got)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, func(s *Server) { s.CORSOrigins = []string{"https://mobility.example"} })
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://mobility.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://mobility.example" {
		t.Errorf("preflight = %d, headers %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin allowed")
	}
}

func TestStream(t *testing.T) {
	s, ts := newTestServer(t)
	s.Sim.RunRound()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	expect := func(want string) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if line == want {
					return
				}
			case <-timeout:
				t.Fatalf("no %q within 5s", want)
			}
		}
	}

	// Catch-up: the first round's event, then a snapshot.
	expect("event: round")
	expect("event: snapshot")

	// Live: a new round pushes its event and a fresh snapshot.
	s.Sim.RunRound()
	expect("event: round")
	expect("event: snapshot")
}
