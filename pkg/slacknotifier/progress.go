// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/soothill/slack-notifier/pkg/metrics"
)

const defaultItemName = "files"

// DefaultThresholds returns the progress percentages notified when none are
// configured.
func DefaultThresholds() []int {
	return []int{20, 100}
}

// NormalizeThresholds sorts thresholds ascending and drops duplicates and
// non-positive values.
func NormalizeThresholds(thresholds []int) []int {
	out := make([]int, 0, len(thresholds))
	for _, t := range thresholds {
		if t > 0 {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Sender is anything that can deliver a notification. *Notifier implements it.
type Sender interface {
	Send(ctx context.Context, level Level, n Notification) bool
}

// TrackerOption customises a Tracker
type TrackerOption func(*Tracker)

// WithItemName sets the noun used in progress messages ("files" by default).
func WithItemName(name string) TrackerOption {
	return func(t *Tracker) {
		if name != "" {
			t.itemName = name
		}
	}
}

// WithTrackerClock overrides the time source used for elapsed time and rate.
// The start time is taken from the clock when the tracker is created.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// Progress is a point-in-time view of a Tracker.
type Progress struct {
	Processed    int
	Total        int
	Errors       int
	LastNotified int
	Elapsed      time.Duration
}

// Percent returns processed/total as a percentage, 0 when total is 0.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * 100
}

// Rate returns processed items per hour.
func (p Progress) Rate() float64 {
	hours := p.Elapsed.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(p.Processed) / hours
}

// Tracker counts processed items and sends a progress notification each time
// the completed percentage crosses one of its thresholds. Every threshold
// fires at most once, in ascending order.
type Tracker struct {
	mu           sync.Mutex
	sender       Sender
	thresholds   []int
	total        int
	processed    int
	errors       int
	lastNotified int
	itemName     string
	start        time.Time
	now          func() time.Time
}

// NewTracker creates a tracker for total items. Thresholds are normalized with
// NormalizeThresholds.
func NewTracker(sender Sender, total int, thresholds []int, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sender:     sender,
		thresholds: NormalizeThresholds(thresholds),
		total:      total,
		itemName:   defaultItemName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()
	return t
}

// Record counts one processed item, and one error when success is false. It
// returns the number of progress notifications sent.
func (t *Tracker) Record(ctx context.Context, success bool) int {
	failed := 0
	if !success {
		failed = 1
	}
	return t.Add(ctx, 1, failed)
}

// Add counts n processed items of which failed were errors.
func (t *Tracker) Add(ctx context.Context, n, failed int) int {
	t.mu.Lock()
	t.processed += n
	t.errors += failed
	due, snap := t.advanceLocked()
	t.mu.Unlock()

	return t.notify(ctx, due, snap)
}

// SetProcessed sets the processed count directly. Several thresholds may be
// crossed by one call; each gets its own notification.
func (t *Tracker) SetProcessed(ctx context.Context, processed int) int {
	t.mu.Lock()
	t.processed = max(processed, 0)
	due, snap := t.advanceLocked()
	t.mu.Unlock()

	return t.notify(ctx, due, snap)
}

// SetTotal changes the expected number of items. Already notified thresholds
// are not repeated.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// Crossed returns the thresholds that the next update would notify, without
// sending anything or moving the watermark.
func (t *Tracker) Crossed() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dueLocked()
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) percentLocked() int {
	if t.total <= 0 {
		return -1
	}
	return t.processed * 100 / t.total
}

func (t *Tracker) dueLocked() []int {
	pct := t.percentLocked()
	var due []int
	for _, threshold := range t.thresholds {
		if threshold > t.lastNotified && threshold <= pct {
			due = append(due, threshold)
		}
	}
	return due
}

// advanceLocked moves the watermark past every crossed threshold and returns
// them together with the counters they should report.
func (t *Tracker) advanceLocked() ([]int, Progress) {
	due := t.dueLocked()
	if len(due) > 0 {
		t.lastNotified = due[len(due)-1]
	}
	return due, t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Progress {
	return Progress{
		Processed:    t.processed,
		Total:        t.total,
		Errors:       t.errors,
		LastNotified: t.lastNotified,
		Elapsed:      t.now().Sub(t.start),
	}
}

func (t *Tracker) notify(ctx context.Context, due []int, snap Progress) int {
	for _, threshold := range due {
		metrics.ProgressNotificationsTotal.Inc()
		t.sender.Send(ctx, LevelInfo, t.progressNotification(threshold, snap))
	}
	return len(due)
}

func (t *Tracker) progressNotification(threshold int, p Progress) Notification {
	noun := t.itemName
	title := cases.Title(language.English)
	return Notification{
		Title:   fmt.Sprintf("Progress: %d%% reached", threshold),
		Message: fmt.Sprintf("Processing Progress: %.1f%%", p.Percent()),
		Fields: []Field{
			{Label: title.String(noun) + " Processed", Value: fmt.Sprintf("%d / %d", p.Processed, p.Total)},
			{Label: "Error " + title.String(noun), Value: p.Errors},
			{Label: "Processing Rate", Value: fmt.Sprintf("%.1f %s/hour", p.Rate(), noun)},
			{Label: "Elapsed Time", Value: fmt.Sprintf("%.2f hours", p.Elapsed.Hours())},
		},
	}
}
