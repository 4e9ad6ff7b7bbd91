package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"clinicnotify/internal/permission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 1, 10, 13, 55, 0, 0, time.UTC)

// fakeServer holds sent notifications and applies the pending filter.
type fakeServer struct {
	mu         sync.Mutex
	items      []Notification
	read       map[string]bool
	sinceSeen  []time.Time
	pushActive bool
	failFetch  error
	pageSize   int
}

func (f *fakeServer) Pending(_ context.Context, since time.Time) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceSeen = append(f.sinceSeen, since)
	if f.failFetch != nil {
		return Page{}, f.failFetch
	}
	var page Page
	for _, n := range f.items {
		if n.SentAt.After(since) && !f.read[n.ID] {
			page.Notifications = append(page.Notifications, n)
		}
	}
	if f.pageSize > 0 && len(page.Notifications) > f.pageSize {
		page.Notifications = page.Notifications[:f.pageSize]
		page.HasMore = true
	}
	return page, nil
}

func (f *fakeServer) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read == nil {
		f.read = map[string]bool{}
	}
	f.read[id] = true
	return nil
}

func (f *fakeServer) HasActiveSubscription(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushActive, nil
}

func (f *fakeServer) send(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Notification{ID: id, Title: "Appointment reminder", SentAt: at})
}

type recordingDisplay struct {
	mu    sync.Mutex
	shown []string
}

func (r *recordingDisplay) Show(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, n.ID)
	return nil
}

func (r *recordingDisplay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

type fixedGate bool

func (g fixedGate) Allowed(context.Context) (bool, error) { return bool(g), nil }

func TestCheckShowsLocallyWithoutPush(t *testing.T) {
	srv := &fakeServer{}
	srv.send("n1", t0)
	srv.send("n2", t0.Add(time.Minute))
	display := &recordingDisplay{}
	p := New(srv, srv, display, fixedGate(true), time.Minute, t0.Add(-time.Hour), zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CheckResult{Fetched: 2, Displayed: 2, MarkedRead: 2}, res)
	assert.Equal(t, []string{"n1", "n2"}, display.shown)
	assert.Equal(t, t0.Add(time.Minute), p.LastChecked())

	res, err = p.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	assert.Equal(t, t0.Add(time.Minute), srv.sinceSeen[1])
}

func TestCheckReadsWholeBacklogSharingOneSentAt(t *testing.T) {
	srv := &fakeServer{pageSize: 50}
	for i := 0; i < 120; i++ {
		srv.send(fmt.Sprintf("n%03d", i), t0)
	}
	display := &recordingDisplay{}
	p := New(srv, srv, display, fixedGate(true), time.Minute, t0.Add(-time.Hour), zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CheckResult{Fetched: 120, Displayed: 120, MarkedRead: 120}, res)
	assert.Equal(t, t0, p.LastChecked())
	for _, since := range srv.sinceSeen {
		assert.Equal(t, t0.Add(-time.Hour), since, "pages reuse the same since")
	}
	assert.Len(t, srv.sinceSeen, 3)
}

type failingMarkServer struct {
	*fakeServer
}

func (failingMarkServer) MarkRead(context.Context, string) error {
	return errors.New("offline")
}

func TestCheckKeepsLastCheckedWhenBacklogIsStuck(t *testing.T) {
	srv := &fakeServer{pageSize: 2}
	for _, id := range []string{"n1", "n2", "n3"} {
		srv.send(id, t0)
	}
	p := New(failingMarkServer{srv}, srv, &recordingDisplay{}, fixedGate(false), time.Minute, t0.Add(-time.Hour), zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.MarkedRead)
	assert.Equal(t, t0.Add(-time.Hour), p.LastChecked())
}

func TestCheckTrustsActivePush(t *testing.T) {
	srv := &fakeServer{pushActive: true}
	srv.send("n1", t0)
	display := &recordingDisplay{}
	p := New(srv, srv, display, fixedGate(true), time.Minute, time.Time{}, zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Displayed)
	assert.Equal(t, 1, res.MarkedRead)
	assert.Empty(t, display.shown)
}

func TestCheckWithoutPermissionStillMarksRead(t *testing.T) {
	srv := &fakeServer{}
	srv.send("n1", t0)
	display := &recordingDisplay{}
	p := New(srv, srv, display, fixedGate(false), time.Minute, time.Time{}, zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Displayed)
	assert.True(t, srv.read["n1"])
}

func TestLastCheckedNeverMovesBackwards(t *testing.T) {
	srv := &fakeServer{}
	p := New(srv, srv, &recordingDisplay{}, fixedGate(true), time.Minute, t0, zap.NewNop())

	// A late-arriving item stamped before lastChecked is invisible to the filter
	srv.send("old", t0.Add(-time.Minute))
	_, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0, p.LastChecked())

	srv.failFetch = errors.New("offline")
	_, err = p.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, t0, p.LastChecked())
}

func TestCheckUsesPermissionPrompt(t *testing.T) {
	srv := &fakeServer{}
	srv.send("n1", t0)
	srv.send("n2", t0.Add(time.Second))
	display := &recordingDisplay{}
	prompt := permission.NewPrompt(&permission.MemoryStore{}, deniedRequester{}, permission.Default)
	p := New(srv, srv, display, prompt, time.Minute, time.Time{}, zap.NewNop())

	_, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, display.shown)
	assert.Equal(t, permission.Denied, prompt.Permission())
}

type deniedRequester struct{}

func (deniedRequester) Request(context.Context) (permission.Permission, error) {
	return permission.Denied, nil
}

// undecidedRequester leaves the permission at default every time.
type undecidedRequester struct{ asked int }

func (u *undecidedRequester) Request(context.Context) (permission.Permission, error) {
	u.asked++
	return permission.Default, nil
}

func TestCheckAsksForPermissionOncePerCheck(t *testing.T) {
	srv := &fakeServer{}
	srv.send("n1", t0)
	srv.send("n2", t0.Add(time.Second))
	srv.send("n3", t0.Add(2*time.Second))
	display := &recordingDisplay{}
	req := &undecidedRequester{}
	prompt := permission.NewPrompt(&permission.MemoryStore{}, req, permission.Default)
	p := New(srv, srv, display, prompt, time.Minute, time.Time{}, zap.NewNop())

	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Zero(t, res.Displayed)
	assert.Equal(t, 3, res.MarkedRead)
	assert.Equal(t, 1, req.asked)
}

func TestStartWakeStop(t *testing.T) {
	srv := &fakeServer{}
	display := &recordingDisplay{}
	p := New(srv, srv, display, fixedGate(true), time.Hour, t0, zap.NewNop())

	p.Start(context.Background())
	p.Start(context.Background())
	assert.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sinceSeen) == 1
	}, time.Second, 5*time.Millisecond, "initial check")

	srv.send("n1", t0.Add(time.Second))
	p.Wake()
	assert.Eventually(t, func() bool { return display.count() == 1 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	srv.send("n2", t0.Add(2*time.Second))
	p.Wake()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, display.count())
}

func TestAPIClient(t *testing.T) {
	var gotSince, gotAuth, readID string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/pending", func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hasMore": true,
			"notifications": []map[string]interface{}{{
				"id": "n1", "type": "appointment_reminder", "title": "Reminder", "message": "Soon",
				"sentAt": t0.Format(time.RFC3339Nano),
				"data":   map[string]interface{}{"appointment_id": "a1", "url": "/appointments/a1"},
			}},
		})
	})
	mux.HandleFunc("/api/notifications/n1/read", func(w http.ResponseWriter, r *http.Request) {
		readID = "n1"
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/notifications/missing/read", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Notification not found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/api/push/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subscriptions":[{"endpoint":"https://push.example/me"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	ctx := context.Background()

	c := NewAPIClient(srv.URL+"/", "tok", "https://push.example/me", srv.Client())
	page, err := c.Pending(ctx, t0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "a1", page.Notifications[0].Data.AppointmentID)
	assert.True(t, page.Notifications[0].SentAt.Equal(t0))
	assert.Equal(t, t0.Format(time.RFC3339Nano), gotSince)
	assert.Equal(t, "Bearer tok", gotAuth)

	require.NoError(t, c.MarkRead(ctx, "n1"))
	assert.Equal(t, "n1", readID)
	assert.ErrorContains(t, c.MarkRead(ctx, "missing"), "status 404")

	active, err := c.HasActiveSubscription(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	other := NewAPIClient(srv.URL, "tok", "https://push.example/other", srv.Client())
	active, err = other.HasActiveSubscription(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = NewAPIClient(srv.URL, "tok", "", nil).HasActiveSubscription(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}
