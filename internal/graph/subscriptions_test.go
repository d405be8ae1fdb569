package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestSubscriptions_RenewExpiring(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	patched := map[string]string{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /subscriptions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(page[Subscription]{Value: []Subscription{
			{ID: "soon", ExpirationDateTime: now.Add(12 * time.Hour)},
			{ID: "edge", ExpirationDateTime: now.Add(48 * time.Hour)},
			{ID: "later", ExpirationDateTime: now.Add(60 * time.Hour)},
			{ID: "broken", ExpirationDateTime: now.Add(time.Hour)},
		}})
	})
	mux.HandleFunc("PATCH /subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "broken" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		patched[r.PathValue("id")] = body["expirationDateTime"]
		mu.Unlock()
		w.Write([]byte(`{}`))
	})

	subs := NewSubscriptions(newTestClient(t, mux))
	subs.now = func() time.Time { return now }

	res, err := subs.RenewExpiring(context.Background())
	if err != nil {
		t.Fatalf("RenewExpiring() error = %v", err)
	}
	if len(res.Renewed) != 2 || res.Skipped != 1 || len(res.Errors) != 1 {
		t.Errorf("renewed=%d skipped=%d errors=%d", len(res.Renewed), res.Skipped, len(res.Errors))
	}
	want := now.Add(4200 * time.Minute).Format(time.RFC3339)
	for _, id := range []string{"soon", "edge"} {
		if patched[id] != want {
			t.Errorf("%s expiration = %q, want %q", id, patched[id], want)
		}
	}
	if _, ok := patched["later"]; ok {
		t.Error("subscription expiring after 48h should not be renewed")
	}
}

func TestSubscriptions_SubscribeList(t *testing.T) {
	f := newFakeTodo()
	mux := http.NewServeMux()
	mux.Handle("/me/", f.handler())
	var got Subscription
	mux.HandleFunc("POST /subscriptions", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		got.ID = "sub-1"
		json.NewEncoder(w).Encode(got)
	})

	c := newTestClient(t, mux)
	store, _ := NewTodoStore(c, []string{"Tasks"}, "")
	sub, err := NewSubscriptions(c).SubscribeList(context.Background(), store, "Work", "https://example.test/taskchain", "s3cret")
	if err != nil {
		t.Fatalf("SubscribeList() error = %v", err)
	}
	if sub.ID != "sub-1" {
		t.Errorf("ID = %q", sub.ID)
	}
	if got.Resource != "/me/todo/lists/L2/tasks" || got.ChangeType != "updated" || got.ClientState != "s3cret" {
		t.Errorf("subscription request = %+v", got)
	}
}
