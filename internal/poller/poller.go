// Package poller is the client-side safety net for missed web push: it
// periodically fetches notifications the server sent but the client has not
// seen, shows them locally when push is not active, and marks them read.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the polling period while enabled.
const DefaultInterval = 30 * time.Second

// Notification is a sent notification as the pending endpoint returns it.
type Notification struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Data    Data      `json:"data"`
	SentAt  time.Time `json:"sentAt"`
}

// Data is the structured part of a notification.
type Data struct {
	URL             string    `json:"url"`
	AppointmentID   string    `json:"appointment_id"`
	AppointmentType string    `json:"appointment_type"`
	AppointmentTime time.Time `json:"appointment_time"`
}

// Page is one response of the pending endpoint.
type Page struct {
	Notifications []Notification `json:"notifications"`
	HasMore       bool           `json:"hasMore"`
}

// Client talks to the notification API.
type Client interface {
	Pending(ctx context.Context, since time.Time) (Page, error)
	MarkRead(ctx context.Context, id string) error
}

// SubscriptionChecker reports whether this client currently receives web push.
type SubscriptionChecker interface {
	HasActiveSubscription(ctx context.Context) (bool, error)
}

// Displayer shows a notification locally.
type Displayer interface {
	Show(ctx context.Context, n Notification) error
}

// Gate decides whether local notifications may be shown, asking the user
// when that is still possible.
type Gate interface {
	Allowed(ctx context.Context) (bool, error)
}

// CheckResult summarizes one check.
type CheckResult struct {
	Fetched    int
	Displayed  int
	MarkedRead int
}

// Poller runs checks on an interval and on Wake. Checks never overlap.
type Poller struct {
	client   Client
	subs     SubscriptionChecker
	display  Displayer
	gate     Gate
	interval time.Duration
	log      *zap.Logger

	wakeCh  chan struct{}
	checkMu sync.Mutex

	mu          sync.Mutex
	lastChecked time.Time
	running     bool
	stop        context.CancelFunc
	done        chan struct{}
}

// New creates a poller that reports notifications sent after since.
func New(client Client, subs SubscriptionChecker, display Displayer, gate Gate, interval time.Duration, since time.Time, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:      client,
		subs:        subs,
		display:     display,
		gate:        gate,
		interval:    interval,
		log:         log.Named("poller"),
		wakeCh:      make(chan struct{}, 1),
		lastChecked: since.UTC(),
	}
}

// Start runs the polling loop until ctx is cancelled or Stop is called. An
// immediate check runs first.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.stop = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop halts the loop and waits for an in-flight check to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stop()
	done := p.done
	p.mu.Unlock()
	<-done
}

// Wake requests an immediate check, e.g. when the client becomes visible
// again. Requests made while one is pending are merged.
func (p *Poller) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// LastChecked returns the newest sent time seen so far.
func (p *Poller) LastChecked() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastChecked
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runCheck(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCheck(ctx)
		case <-p.wakeCh:
			p.runCheck(ctx)
		}
	}
}

func (p *Poller) runCheck(ctx context.Context) {
	if _, err := p.Check(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("notification check failed", zap.Error(err))
	}
}

// Check fetches pending notifications, surfaces them and advances the
// last-checked time. A page with more behind it is re-fetched with the same
// since, since the items just marked read drop out of it. Only a fetch can
// fail the check.
func (p *Poller) Check(ctx context.Context) (CheckResult, error) {
	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	var (
		result    CheckResult
		decided   bool
		showLocal bool
	)
	since := p.LastChecked()
	newest := since
	for {
		page, err := p.client.Pending(ctx, since)
		if err != nil {
			return result, err
		}
		result.Fetched += len(page.Notifications)
		if len(page.Notifications) == 0 {
			break
		}

		if !decided {
			showLocal = p.showLocally(ctx)
			decided = true
		}

		marked := 0
		for _, n := range page.Notifications {
			if showLocal && p.show(ctx, n) {
				result.Displayed++
			}
			if err := p.client.MarkRead(ctx, n.ID); err != nil {
				p.log.Warn("failed to mark notification read", zap.String("notification_id", n.ID), zap.Error(err))
			} else {
				marked++
			}
			if n.SentAt.After(newest) {
				newest = n.SentAt.UTC()
			}
		}
		result.MarkedRead += marked

		if !page.HasMore {
			break
		}
		// Items left behind may share the newest sent_at, so lastChecked
		// stays put until they are read.
		if marked == 0 {
			return result, nil
		}
	}

	p.mu.Lock()
	if newest.After(p.lastChecked) {
		p.lastChecked = newest
	}
	p.mu.Unlock()
	return result, nil
}

// showLocally reports whether this check surfaces notifications itself: push
// is not reaching this client and the gate allows it.
func (p *Poller) showLocally(ctx context.Context) bool {
	pushActive, err := p.subs.HasActiveSubscription(ctx)
	if err != nil {
		p.log.Debug("cannot determine push subscription, showing locally", zap.Error(err))
		pushActive = false
	}
	return !pushActive && p.allowed(ctx)
}

// allowed asks the gate once per check.
func (p *Poller) allowed(ctx context.Context) bool {
	ok, err := p.gate.Allowed(ctx)
	if err != nil {
		p.log.Warn("permission check failed", zap.Error(err))
		return false
	}
	return ok
}

func (p *Poller) show(ctx context.Context, n Notification) bool {
	if err := p.display.Show(ctx, n); err != nil {
		p.log.Warn("failed to show notification", zap.String("notification_id", n.ID), zap.Error(err))
		return false
	}
	return true
}
