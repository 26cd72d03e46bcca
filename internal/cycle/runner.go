// Package cycle drives the reconcile-and-notify pipeline: fetch activities,
// upsert them into the calendar store, then deliver windowed notifications
// to the mapped chat channels.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/homework-notify/backend/internal/calendar"
	"github.com/homework-notify/backend/internal/chat"
	"github.com/homework-notify/backend/internal/feed"
	"github.com/homework-notify/backend/internal/notify"
)

// ErrCycleInFlight is returned when a trigger arrives while a cycle is
// already running. Triggers are ignored, never interleaved: the tracker and
// ledger are unsynchronized state owned by the single active cycle.
var ErrCycleInFlight = errors.New("a cycle is already running")

// ErrNotMapped is returned for on-demand triggers naming a calendar or
// channel outside the configured mapping.
var ErrNotMapped = errors.New("not present in the calendar to channel mapping")

// ChannelReport is the per-channel outcome of a notification pass.
type ChannelReport struct {
	CalendarID string `json:"calendar_id"`
	ChannelID  string `json:"channel_id"`
	Eligible   int    `json:"eligible"`
	Chunks     int    `json:"chunks"`
	Sent       int    `json:"sent"`
	Error      string `json:"error,omitempty"`
}

// Report aggregates one full cycle.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Reconcile  *calendar.Report `json:"-"`
	Created    int              `json:"created"`
	Updated    int              `json:"updated"`
	Unchanged  int              `json:"unchanged"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Channels   []ChannelReport  `json:"channels"`
}

// Broadcaster receives cycle lifecycle events for the admin UI. Implemented
// by the websocket event broadcaster; nil disables broadcasting.
type Broadcaster interface {
	CycleCompleted(report Report)
	CycleError(stage string, err error)
}

// Options bundles the runner's collaborators and static configuration.
type Options struct {
	Store            calendar.Store
	Feed             *feed.Client
	Channel          chat.Channel
	Classes          map[int]string
	CalendarChannels map[string]string
	SyncCalendarID   string
	WindowHours      []int
	Location         *time.Location
	BaseSiteURL      string
	MessageLimit     int
	SendPacing       time.Duration
	FetchPacing      time.Duration
	Broadcaster      Broadcaster
}

// Runner executes cycles one at a time. It owns the dedup tracker and the
// message ledger; no other component mutates them.
type Runner struct {
	store            calendar.Store
	feed             *feed.Client
	reconciler       *calendar.Reconciler
	tracker          *notify.Tracker
	dispatcher       *notify.Dispatcher
	chunker          *notify.Chunker
	classes          map[int]string
	calendarChannels map[string]string
	syncCalendarID   string
	windows          []int
	location         *time.Location
	fetchPacing      time.Duration
	broadcaster      Broadcaster

	// now is the cycle clock, replaceable in tests.
	now func() time.Time
	// sleep paces collaborator calls, replaceable in tests.
	sleep func(time.Duration)

	mu         sync.Mutex
	running    bool
	lastReport *Report
}

// NewRunner wires a runner from its collaborators.
func NewRunner(opts Options) *Runner {
	windows := append([]int(nil), opts.WindowHours...)
	sort.Ints(windows)

	return &Runner{
		store:            opts.Store,
		feed:             opts.Feed,
		reconciler:       calendar.NewReconciler(opts.Store, opts.Classes),
		tracker:          notify.NewTracker(),
		dispatcher:       notify.NewDispatcher(opts.Channel, notify.NewLedger(), opts.SendPacing),
		chunker:          notify.NewChunker(opts.Location, opts.BaseSiteURL, opts.MessageLimit),
		classes:          opts.Classes,
		calendarChannels: opts.CalendarChannels,
		syncCalendarID:   opts.SyncCalendarID,
		windows:          windows,
		location:         opts.Location,
		fetchPacing:      opts.FetchPacing,
		broadcaster:      opts.Broadcaster,
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

// RunCycle executes one full reconcile-and-notify cycle. When fetch is
// false the reconcile half is skipped and only notifications run. Returns
// ErrCycleInFlight if another cycle holds the runner.
func (r *Runner) RunCycle(ctx context.Context, fetch bool) (*Report, error) {
	if !r.tryAcquire() {
		return nil, ErrCycleInFlight
	}
	defer r.release()

	report := &Report{StartedAt: r.now().UTC()}

	if fetch {
		rec := r.reconcile(ctx, r.syncCalendarID)
		report.Reconcile = rec
		report.Created = rec.Created
		report.Updated = rec.Updated
		report.Unchanged = rec.Unchanged
		report.Skipped = rec.Skipped
		report.Failed = rec.Failed
	}

	for _, calendarID := range r.sortedCalendars() {
		channelID := r.calendarChannels[calendarID]
		report.Channels = append(report.Channels, r.notifyCalendar(ctx, calendarID, channelID))
	}

	report.FinishedAt = r.now().UTC()
	r.setLastReport(report)
	if r.broadcaster != nil {
		r.broadcaster.CycleCompleted(*report)
	}
	return report, nil
}

// ReconcileNow runs only the reconcile half against one calendar, on
// demand. The calendar must be the sync target or present in the channel
// mapping.
func (r *Runner) ReconcileNow(ctx context.Context, calendarID string) (*calendar.Report, error) {
	if calendarID != r.syncCalendarID {
		if _, ok := r.calendarChannels[calendarID]; !ok {
			return nil, ErrNotMapped
		}
	}
	if !r.tryAcquire() {
		return nil, ErrCycleInFlight
	}
	defer r.release()

	return r.reconcile(ctx, calendarID), nil
}

// NotifyNow runs only the notification half for one mapped calendar, on
// demand.
func (r *Runner) NotifyNow(ctx context.Context, calendarID string) (*ChannelReport, error) {
	channelID, ok := r.calendarChannels[calendarID]
	if !ok {
		return nil, ErrNotMapped
	}
	if !r.tryAcquire() {
		return nil, ErrCycleInFlight
	}
	defer r.release()

	result := r.notifyCalendar(ctx, calendarID, channelID)
	return &result, nil
}

// RetractChannel deletes every ledgered message for a mapped channel.
func (r *Runner) RetractChannel(ctx context.Context, channelID string) (int, error) {
	if !r.channelMapped(channelID) {
		return 0, ErrNotMapped
	}
	if !r.tryAcquire() {
		return 0, ErrCycleInFlight
	}
	defer r.release()

	return r.dispatcher.Retract(ctx, channelID), nil
}

// ClearCalendar deletes every entry of a mapped calendar from the store.
func (r *Runner) ClearCalendar(ctx context.Context, calendarID string) (int, error) {
	if calendarID != r.syncCalendarID {
		if _, ok := r.calendarChannels[calendarID]; !ok {
			return 0, ErrNotMapped
		}
	}
	if !r.tryAcquire() {
		return 0, ErrCycleInFlight
	}
	defer r.release()

	return calendar.ClearCalendar(ctx, r.store, calendarID)
}

// reconcile fetches every configured class from the feed and upserts the
// combined batch into the calendar. Per-class fetch failures are logged and
// the remaining classes still run.
func (r *Runner) reconcile(ctx context.Context, calendarID string) *calendar.Report {
	var items []calendar.WorkItem

	classIDs := make([]int, 0, len(r.classes))
	for id := range r.classes {
		classIDs = append(classIDs, id)
	}
	sort.Ints(classIDs)

	for i, classID := range classIDs {
		fetched, err := r.feed.FetchClass(ctx, classID)
		if err != nil {
			log.Printf("Could not fetch activities for class %d: %v", classID, err)
			if r.broadcaster != nil {
				r.broadcaster.CycleError("fetch", fmt.Errorf("class %d: %w", classID, err))
			}
			continue
		}
		items = append(items, fetched...)
		if i < len(classIDs)-1 {
			r.sleep(r.fetchPacing)
		}
	}

	report := r.reconciler.Reconcile(ctx, items, calendarID)
	log.Printf("Reconcile for calendar %s: %d created, %d updated, %d unchanged, %d skipped, %d failed",
		calendarID, report.Created, report.Updated, report.Unchanged, report.Skipped, report.Failed)
	return &report
}

// notifyCalendar runs the notification half for one calendar/channel pair:
// list upcoming entries, select the window-eligible ones, chunk, dispatch,
// and record suppressions for what was delivered.
func (r *Runner) notifyCalendar(ctx context.Context, calendarID, channelID string) ChannelReport {
	result := ChannelReport{CalendarID: calendarID, ChannelID: channelID}
	now := r.now()

	entries, err := r.store.ListEntries(ctx, calendarID, now)
	if err != nil {
		result.Error = err.Error()
		log.Printf("Could not list entries for calendar %s: %v", calendarID, err)
		if r.broadcaster != nil {
			r.broadcaster.CycleError("list", fmt.Errorf("calendar %s: %w", calendarID, err))
		}
		return result
	}

	// Each window is an independent dedup namespace; the message batch is
	// their union, deduplicated and ordered by end time.
	perWindow := make(map[int][]calendar.Entry, len(r.windows))
	var batch []calendar.Entry
	seen := make(map[string]bool)
	for _, window := range r.windows {
		eligible := r.tracker.SelectEligible(calendarID, entries, now, window)
		perWindow[window] = eligible
		for _, e := range eligible {
			identity := e.Annotation
			if identity == "" {
				identity = e.ID
			}
			if !seen[identity] {
				seen[identity] = true
				batch = append(batch, e)
			}
		}
	}
	notify.SortByEnd(batch)
	result.Eligible = len(batch)

	if len(batch) == 0 {
		return result
	}

	chunks := r.chunker.Chunk(batch, notify.DefaultHeader, now)
	result.Chunks = len(chunks)

	sent := r.dispatcher.Dispatch(ctx, channelID, chunks)
	result.Sent = len(sent)

	// Suppression is recorded only after delivery; a fully failed dispatch
	// leaves the entries eligible for the next cycle.
	if len(sent) > 0 {
		for window, eligible := range perWindow {
			r.tracker.MarkNotified(calendarID, eligible, window)
		}
	}

	log.Printf("Notified channel %s for calendar %s: %d entries in %d message(s)",
		channelID, calendarID, result.Eligible, result.Sent)
	return result
}

// SendStartupMessage posts a summary of the monitored calendars to the
// status channel, when one is configured.
func (r *Runner) SendStartupMessage(ctx context.Context, statusChannelID, dailyTrigger string) {
	if statusChannelID == "" {
		return
	}

	calendars := ""
	for _, id := range r.sortedCalendars() {
		calendars += fmt.Sprintf("  • `%s`\n", id)
	}

	text := fmt.Sprintf(
		"🤖 **Bot Online**\n\n"+
			"✅ Homework notify service is now running!\n"+
			"⏰ Started at: %s\n\n"+
			"📅 Monitoring %d calendar(s):\n%s\n"+
			"🔔 Daily notifications at %s\n",
		r.now().In(r.location).Format("02/01/2006 15:04:05"),
		len(r.calendarChannels), calendars, dailyTrigger,
	)

	if _, err := r.dispatcher.Send(ctx, statusChannelID, text); err != nil {
		log.Printf("Could not send startup message to channel %s: %v", statusChannelID, err)
	}
}

// Running reports whether a cycle is currently in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastReport returns the most recent completed cycle report, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReport
}

// Calendars returns the configured calendar to channel mapping.
func (r *Runner) Calendars() map[string]string {
	out := make(map[string]string, len(r.calendarChannels))
	for k, v := range r.calendarChannels {
		out[k] = v
	}
	return out
}

// Store exposes the calendar store for read-only API surfaces.
func (r *Runner) Store() calendar.Store {
	return r.store
}

func (r *Runner) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		log.Println("Trigger ignored: a cycle is already running")
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) setLastReport(report *Report) {
	r.mu.Lock()
	r.lastReport = report
	r.mu.Unlock()
}

func (r *Runner) channelMapped(channelID string) bool {
	for _, id := range r.calendarChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

func (r *Runner) sortedCalendars() []string {
	ids := make([]string, 0, len(r.calendarChannels))
	for id := range r.calendarChannels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
