package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShortSessionThreshold splits logouts into short and full sessions.
const ShortSessionThreshold = 8 * time.Hour

// ErrQueued is joined to a storage error when the event was kept in the
// outbox for a later replay.
var ErrQueued = errors.New("event queued for retry")

// App wires the ledgers, the statistics sheet and their collaborators.
type App struct {
	cfg      Config
	book     Workbook
	logins   *Ledger
	logouts  *Ledger
	stats    TabularStore
	statsMu  sync.Mutex
	outbox   *Outbox
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

type AppOption func(*App)

func WithClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

func WithNotifier(n Notifier) AppOption {
	return func(a *App) { a.notifier = n }
}

func WithOutbox(o *Outbox) AppOption {
	return func(a *App) { a.outbox = o }
}

func NewApp(ctx context.Context, cfg Config, book Workbook, opts ...AppOption) (*App, error) {
	loc, err := LoadReferenceZone()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		book:     book,
		notifier: nopNotifier{},
		loc:      loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	stores := make([]TabularStore, 3)
	for i, name := range []string{cfg.LoginSheet, cfg.LogoutSheet, cfg.StatsSheet} {
		if stores[i], err = book.Sheet(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to open sheet %s: %w", name, err)
		}
	}
	a.logins = NewLedger(stores[0], loc)
	a.logouts = NewLedger(stores[1], loc)
	a.stats = stores[2]

	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.outbox != nil {
		errs = append(errs, a.outbox.Close())
	}
	errs = append(errs, a.book.Close())
	return errors.Join(errs...)
}

func (a *App) Location() *time.Location {
	return a.loc
}

func (a *App) event(m Member) Event {
	return Event{Timestamp: a.now().In(a.loc), User: m.DisplayName, Roles: m.Roles}
}

// Login records a login in the login ledger.
func (a *App) Login(ctx context.Context, m Member) (int, error) {
	ev := a.event(m)

	row, err := a.logins.Append(ctx, ev, HighlightPositive)
	if err != nil {
		return 0, a.dropped(ctx, KindLogin, ev, HighlightPositive, err)
	}

	LogInfof("Recorded login of %s in %s row %d", ev.User, a.logins.Name(), row)
	return row, nil
}

// Logout records a logout, tinted by how long ago the member last logged in.
func (a *App) Logout(ctx context.Context, m Member) (LogoutResult, error) {
	ev := a.event(m)
	res := LogoutResult{Emphasis: HighlightNeutral}

	last, ok, err := a.logins.LastLogin(ctx, ev.User)
	if err != nil {
		return res, a.dropped(ctx, KindLogout, ev, res.Emphasis, err)
	}
	res.LastLogin, res.HadLogin = last, ok
	res.Emphasis, res.Session = ClassifyLogout(last, ok, ev.Timestamp)

	row, err := a.logouts.Append(ctx, ev, res.Emphasis)
	if err != nil {
		return res, a.dropped(ctx, KindLogout, ev, res.Emphasis, err)
	}
	res.Row = row

	LogInfof("Recorded logout of %s in %s row %d (%s)", ev.User, a.logouts.Name(), row, res.Emphasis)
	return res, nil
}

// ClassifyLogout tints a logout negative when the last login was less than
// ShortSessionThreshold before it, neutral otherwise or when unknown.
func ClassifyLogout(lastLogin time.Time, ok bool, at time.Time) (Emphasis, time.Duration) {
	if !ok {
		return HighlightNeutral, 0
	}
	session := at.Sub(lastLogin)
	if session < ShortSessionThreshold {
		return HighlightNegative, session
	}
	return HighlightNeutral, session
}

func (a *App) dropped(ctx context.Context, kind EventKind, ev Event, emphasis Emphasis, cause error) error {
	log := logger().With(F("kind", kind), F("user", ev.User))
	log.Error("Failed to record event", F("error", cause))

	if a.outbox != nil {
		if err := a.outbox.Push(ctx, kind, ev, emphasis); err != nil {
			log.Error("Failed to queue event", F("error", err))
		} else {
			return errors.Join(cause, ErrQueued)
		}
	}

	msg := fmt.Sprintf("%s of %s at %s was not recorded", kind, ev.User, ev.Timestamp.Format(time.RFC1123))
	if err := a.notifier.Alert("hunterlog: event dropped", msg); err != nil {
		LogWarnf("Failed to alert operator: %v", err)
	}
	return cause
}

// Statistics rebuilds the statistics sheet for one month.
func (a *App) Statistics(ctx context.Context, month time.Month, year int) (StatisticsResult, Report, error) {
	var logins, logouts ParseResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logins, err = a.logins.Events(gctx, month, year)
		return err
	})
	g.Go(func() error {
		var err error
		logouts, err = a.logouts.Events(gctx, month, year)
		return err
	})
	if err := g.Wait(); err != nil {
		return StatisticsResult{}, Report{}, err
	}

	stats := Aggregate(logins.Events, logouts.Events)
	period := PeriodLabel(month, year)
	report := RenderReport(stats, period)

	res := StatisticsResult{Period: period, Users: len(stats), Skipped: logins.Skipped + logouts.Skipped}
	if res.Skipped > 0 {
		LogDebugf("Skipped %d malformed ledger rows while building %s report", res.Skipped, period)
	}

	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	if err := WriteReport(ctx, a.stats, report); err != nil {
		return res, report, err
	}

	LogInfof("Wrote %s report for %d users", period, res.Users)
	return res, report, nil
}

// CurrentStatistics rebuilds the statistics sheet for the running month.
func (a *App) CurrentStatistics(ctx context.Context) (StatisticsResult, error) {
	now := a.now().In(a.loc)
	res, _, err := a.Statistics(ctx, now.Month(), now.Year())
	return res, err
}

// Replay re-appends queued events in the order they were queued.
func (a *App) Replay(ctx context.Context) (replayed, failed int, err error) {
	if a.outbox == nil {
		return 0, 0, errors.New("outbox is disabled")
	}

	pending, err := a.outbox.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, q := range pending {
		ledger := a.logins
		if q.Kind == KindLogout {
			ledger = a.logouts
		}

		if _, err := ledger.Append(ctx, q.Event, q.Emphasis); err != nil {
			LogWarnf("Replay of queued %s %d failed: %v", q.Kind, q.ID, err)
			if err := a.outbox.Failed(ctx, q.ID); err != nil {
				return replayed, failed, err
			}
			failed++
			continue
		}
		if err := a.outbox.Done(ctx, q.ID); err != nil {
			return replayed, failed, err
		}
		replayed++
	}

	return replayed, failed, nil
}

// ImportLegacy appends events read from the old flat log into the ledgers
// in time order. Logout tints follow the imported logins.
func (a *App) ImportLegacy(ctx context.Context, events []LegacyEvent) (int, error) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Event.Timestamp.Before(events[j].Event.Timestamp)
	})

	lastLogin := make(map[string]time.Time)
	for i, le := range events {
		ev := le.Event
		ev.Timestamp = ev.Timestamp.In(a.loc)

		var err error
		switch le.Kind {
		case KindLogin:
			lastLogin[ev.User] = ev.Timestamp
			_, err = a.logins.Append(ctx, ev, HighlightPositive)
		case KindLogout:
			last, ok := lastLogin[ev.User]
			emphasis, _ := ClassifyLogout(last, ok, ev.Timestamp)
			_, err = a.logouts.Append(ctx, ev, emphasis)
		}
		if err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// SheetRows returns the raw rows of a sheet of the workbook.
func (a *App) SheetRows(ctx context.Context, name string) ([][]string, error) {
	store, err := a.book.Sheet(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.Rows(ctx)
}
