package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/trezcool/ulms/core"
)

const (
	DefaultDwell         = 5 * time.Second
	defaultNotifyTimeout = 10 * time.Second
)

type (
	// Notifier is a side effect triggered for every recorded alert. Errors are logged, never propagated.
	Notifier interface {
		Notify(ctx context.Context, alert SuspiciousAlert) error
	}

	NotifierFunc func(ctx context.Context, alert SuspiciousAlert) error

	AggregatorConfig struct {
		Dwell         time.Duration
		NotifyTimeout time.Duration
		Clock         clock.Clock
		Logger        core.Logger
	}

	// Summary counts alerts per severity.
	Summary struct {
		Total  int `json:"total"`
		High   int `json:"high"`
		Medium int `json:"medium"`
		Low    int `json:"low"`
	}

	namedNotifier struct {
		name string
		Notifier
	}

	// Aggregator keeps the alert history and the transient "current" alert.
	Aggregator struct {
		conf AggregatorConfig

		mu        sync.Mutex
		history   []SuspiciousAlert
		current   *SuspiciousAlert
		timer     *clock.Timer
		notifiers []namedNotifier
		subs      map[int]chan SuspiciousAlert
		nextSub   int

		wg sync.WaitGroup
	}
)

func (fn NotifierFunc) Notify(ctx context.Context, alert SuspiciousAlert) error {
	return fn(ctx, alert)
}

func NewAggregator(conf AggregatorConfig) *Aggregator {
	if conf.Dwell <= 0 {
		conf.Dwell = DefaultDwell
	}
	if conf.NotifyTimeout <= 0 {
		conf.NotifyTimeout = defaultNotifyTimeout
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	return &Aggregator{
		conf: conf,
		subs: make(map[int]chan SuspiciousAlert),
	}
}

// AddNotifier must be called before any alert is recorded.
func (a *Aggregator) AddNotifier(name string, n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, namedNotifier{name: name, Notifier: n})
}

// Record appends alert to the history and makes it the current one, restarting the dwell clock.
func (a *Aggregator) Record(alert SuspiciousAlert) {
	a.mu.Lock()
	a.history = append(a.history, alert)
	cur := alert
	a.current = &cur
	if a.timer != nil {
		a.timer.Stop()
	}
	id := alert.ID
	a.timer = a.conf.Clock.AfterFunc(a.conf.Dwell, func() { a.expire(id) })

	for _, ch := range a.subs {
		select {
		case ch <- alert:
		default: // slow subscriber, drop
		}
	}
	a.mu.Unlock()

	a.Notify(alert)
}

// expire clears the current slot only if it still holds the alert that armed the timer.
func (a *Aggregator) expire(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil && a.current.ID == id {
		a.current = nil
		a.timer = nil
	}
}

// Notify fans alert out to every notifier without blocking the caller.
func (a *Aggregator) Notify(alert SuspiciousAlert) {
	a.mu.Lock()
	notifiers := a.notifiers
	a.mu.Unlock()

	for _, n := range notifiers {
		a.wg.Add(1)
		go a.runNotifier(n, alert)
	}
}

func (a *Aggregator) runNotifier(n namedNotifier, alert SuspiciousAlert) {
	defer a.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			a.logError(fmt.Sprintf("notifier %s panicked: %v", n.name, r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.conf.NotifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, alert); err != nil {
		a.logError(fmt.Sprintf("notifier %s: %v", n.name, err), err)
	}
}

func (a *Aggregator) logError(msg string, args ...interface{}) {
	if a.conf.Logger != nil {
		a.conf.Logger.Error(msg, args...)
	}
}

// Current returns the unexpired, undismissed alert if any.
func (a *Aggregator) Current() (SuspiciousAlert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return SuspiciousAlert{}, false
	}
	return *a.current, true
}

// Dismiss hides the current alert. History is left untouched.
func (a *Aggregator) Dismiss() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return false
	}
	a.current = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return true
}

// History returns a copy of every alert in chronological order.
func (a *Aggregator) History() []SuspiciousAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SuspiciousAlert, len(a.history))
	copy(out, a.history)
	return out
}

// Filter returns the history restricted to one severity. An empty severity matches all.
func (a *Aggregator) Filter(sev Severity) []SuspiciousAlert {
	all := a.History()
	if sev == "" {
		return all
	}
	out := make([]SuspiciousAlert, 0, len(all))
	for _, alert := range all {
		if alert.Severity == sev {
			out = append(out, alert)
		}
	}
	return out
}

func (a *Aggregator) Find(id string) (SuspiciousAlert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, alert := range a.history {
		if alert.ID == id {
			return alert, true
		}
	}
	return SuspiciousAlert{}, false
}

func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Summary{Total: len(a.history)}
	for _, alert := range a.history {
		switch alert.Severity {
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

// Subscribe streams newly recorded alerts. Alerts are dropped when the buffer is full.
// The returned func unsubscribes and closes the channel.
func (a *Aggregator) Subscribe(buffer int) (<-chan SuspiciousAlert, func()) {
	ch := make(chan SuspiciousAlert, buffer)
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
			close(ch)
		})
	}
}

// Clear wipes the history. Only called once the exam session is over.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.current = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Wait blocks until every in-flight notification is done.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}
