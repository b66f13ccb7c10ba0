package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

const oddsBody = `[
  {
    "id": "e1",
    "sport_key": "basketball_nba",
    "commence_time": "2030-01-02T00:00:00Z",
    "home_team": "Boston Celtics",
    "away_team": "Miami Heat",
    "bookmakers": [
      {"key": "book1", "markets": [
        {"key": "h2h", "outcomes": [
          {"name": "Boston Celtics", "price": -150},
          {"name": "Miami Heat", "price": 130}
        ]}
      ]}
    ]
  },
  {
    "id": "e2-malformado",
    "sport_key": "basketball_nba",
    "commence_time": "2030-01-03T00:00:00Z",
    "home_team": "",
    "away_team": "Chicago Bulls",
    "bookmakers": []
  },
  {
    "id": "e3-sem-mercado",
    "sport_key": "basketball_nba",
    "commence_time": "2030-01-04T00:00:00Z",
    "home_team": "Denver Nuggets",
    "away_team": "Phoenix Suns",
    "bookmakers": [
      {"key": "book1", "markets": [
        {"key": "h2h", "outcomes": [{"name": "Denver Nuggets", "price": -110}]}
      ]}
    ]
  }
]`

func TestFetchOddsKeyFailover(t *testing.T) {
	var attempts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("apiKey")
		attempts = append(attempts, key)
		if key != "good" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(oddsBody))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"bad1", "bad2", "good"}, time.Second, zap.NewNop())
	var failed []int
	c.OnKeyFailure = func(i int) { failed = append(failed, i) }

	events, err := c.FetchOdds(context.Background(), "basketball_nba")
	if err != nil {
		t.Fatalf("FetchOdds: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (malformed skipped)", len(events))
	}
	ev := events[0]
	if ev.HomeTeam != "Boston Celtics" || ev.AwayTeam != "Miami Heat" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(ev.Outcomes) != 2 || ev.Outcomes[0].Price != -150 || ev.Outcomes[1].Price != 130 {
		t.Fatalf("unexpected outcomes %+v", ev.Outcomes)
	}
	if want := []string{"bad1", "bad2", "good"}; len(attempts) != 3 || attempts[0] != want[0] || attempts[2] != want[2] {
		t.Fatalf("attempts = %v, want ordered failover %v", attempts, want)
	}
	if len(failed) != 2 || failed[0] != 0 || failed[1] != 1 {
		t.Fatalf("OnKeyFailure calls = %v", failed)
	}
}

func TestFetchOddsAllCredentialsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"k1", "k2", "k3", "k4", "k5"}, time.Second, zap.NewNop())
	_, err := c.FetchOdds(context.Background(), "basketball_nba")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsExhausted(err) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
}

func TestFetchOddsNoKeys(t *testing.T) {
	c := New("http://unused", nil, time.Second, zap.NewNop())
	_, err := c.FetchOdds(context.Background(), "soccer_epl")
	if !IsExhausted(err) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
}

func TestSlowCredentialTimesOutAndFailsOver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") == "slow" {
			time.Sleep(300 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(oddsBody))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"slow", "fast"}, 50*time.Millisecond, zap.NewNop())
	events, err := c.FetchOdds(context.Background(), "basketball_nba")
	if err != nil {
		t.Fatalf("expected failover past slow credential, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestFetchScores(t *testing.T) {
	body := `[
	  {
	    "id": "g1", "sport_key": "basketball_nba", "completed": true,
	    "commence_time": "2026-01-01T00:00:00Z",
	    "home_team": "Boston Celtics", "away_team": "Miami Heat",
	    "scores": [
	      {"name": "Boston Celtics", "score": "110"},
	      {"name": "Miami Heat", "score": "104"}
	    ]
	  },
	  {
	    "id": "g2", "sport_key": "basketball_nba", "completed": false,
	    "commence_time": "2026-01-01T01:00:00Z",
	    "home_team": "Denver Nuggets", "away_team": "Phoenix Suns",
	    "scores": null
	  },
	  {
	    "id": "g3", "sport_key": "basketball_nba", "completed": true,
	    "commence_time": "2026-01-01T02:00:00Z",
	    "home_team": "Dallas Mavericks", "away_team": "Utah Jazz",
	    "scores": [{"name": "Dallas Mavericks", "score": "99"}]
	  }
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("daysFrom") != "3" {
			t.Errorf("daysFrom = %q", r.URL.Query().Get("daysFrom"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"k"}, time.Second, zap.NewNop())
	results, err := c.FetchScores(context.Background(), "basketball_nba", 3)
	if err != nil {
		t.Fatalf("FetchScores: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Completed || results[0].HomeScore != 110 || results[0].AwayScore != 104 {
		t.Fatalf("g1 = %+v", results[0])
	}
	if results[1].Completed {
		t.Fatal("g2 must stay incomplete")
	}
	// completo mas sem os dois placares não serve pra liquidação
	if results[2].Completed {
		t.Fatalf("g3 must be demoted to incomplete, got %+v", results[2])
	}
}
