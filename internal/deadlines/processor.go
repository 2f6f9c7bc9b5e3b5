// Package deadlines expires overdue tender documents and reports upcoming ones.
package deadlines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"caredraft/internal/cache"
	"caredraft/internal/documents"
)

// DefaultReminderWindow is how far ahead a deadline counts as upcoming.
const DefaultReminderWindow = 72 * time.Hour

var (
	remindersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caredraft_deadline_reminders_total",
		Help: "Total number of upcoming-deadline reminders raised",
	})
	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caredraft_deadline_expired_total",
		Help: "Total number of documents moved to expired",
	})
)

// Invalidator drops cached entries by tag.
type Invalidator interface {
	InvalidateByTag(tag string) int
}

// Reminder describes a document whose deadline is close.
type Reminder struct {
	DocumentID string        `json:"document_id"`
	Title      string        `json:"title"`
	Deadline   time.Time     `json:"deadline"`
	Remaining  time.Duration `json:"remaining"`
}

// Report summarises one Run.
type Report struct {
	Expired   []string   `json:"expired"`
	Reminders []Reminder `json:"reminders"`
}

// Processor scans open documents with a deadline.
type Processor struct {
	store          documents.Store
	invalidators   []Invalidator
	reminderWindow time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithReminderWindow sets how far ahead deadlines are reported.
func WithReminderWindow(d time.Duration) Option {
	return func(p *Processor) { p.reminderWindow = d }
}

// WithInvalidators sets the caches cleared when a document expires.
func WithInvalidators(inv ...Invalidator) Option {
	return func(p *Processor) { p.invalidators = inv }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a processor over store.
func NewProcessor(store documents.Store, opts ...Option) *Processor {
	p := &Processor{
		store:          store,
		reminderWindow: DefaultReminderWindow,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reminderWindow < 0 {
		p.reminderWindow = 0
	}
	return p
}

// maxExpirePages bounds the overdue pages one Run works through.
const maxExpirePages = 10

// Run expires every open document whose deadline has passed and reports those
// due within the reminder window. Overdue documents are queried on their own,
// page by page, so upcoming ones never crowd them out. At most
// documents.MaxListLimit reminders are reported per run.
func (p *Processor) Run(ctx context.Context) (Report, error) {
	now := p.now().UTC()
	report := Report{Expired: []string{}, Reminders: []Reminder{}}

	var errs []error
	if err := p.expireOverdue(ctx, now, &report, &errs); err != nil {
		return report, err
	}

	horizon := now.Add(p.reminderWindow)
	docs, err := p.store.List(ctx, documents.ListParams{
		Statuses:  documents.OpenStatuses,
		DueBefore: &horizon,
		Limit:     documents.MaxListLimit,
	})
	if err != nil {
		return report, fmt.Errorf("list upcoming deadlines: %w", err)
	}
	for _, doc := range docs {
		// Overdue documents whose update failed are already reported in errs.
		if doc.Deadline == nil || !doc.Deadline.After(now) {
			continue
		}
		remaining := doc.Deadline.Sub(now)
		report.Reminders = append(report.Reminders, Reminder{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Deadline:   *doc.Deadline,
			Remaining:  remaining,
		})
		remindersTotal.Inc()
		p.logger.Info("tender deadline approaching",
			"document_id", doc.ID,
			"deadline", doc.Deadline.Format(time.RFC3339),
			"remaining", remaining.Round(time.Minute).String(),
		)
	}

	return report, errors.Join(errs...)
}

// expireOverdue moves open documents with a passed deadline to expired. Expired
// documents leave the open set, so each page lists the next batch. It stops on a
// short page, on a page that made no progress, or after maxExpirePages.
func (p *Processor) expireOverdue(ctx context.Context, now time.Time, report *Report, errs *[]error) error {
	failed := make(map[string]struct{})

	for page := 0; page < maxExpirePages; page++ {
		docs, err := p.store.List(ctx, documents.ListParams{
			Statuses:  documents.OpenStatuses,
			DueBefore: &now,
			Limit:     documents.MaxListLimit,
		})
		if err != nil {
			return fmt.Errorf("list overdue documents: %w", err)
		}

		progressed := false
		for _, doc := range docs {
			if _, seen := failed[doc.ID]; seen || doc.Deadline == nil {
				continue
			}
			doc.Status = documents.StatusExpired
			doc.UpdatedAt = now
			if err := p.store.Update(ctx, doc); err != nil {
				if !errors.Is(err, documents.ErrNotFound) {
					*errs = append(*errs, fmt.Errorf("expire document %s: %w", doc.ID, err))
				}
				failed[doc.ID] = struct{}{}
				continue
			}
			progressed = true
			p.invalidate(doc.ID)
			report.Expired = append(report.Expired, doc.ID)
			expiredTotal.Inc()
			p.logger.Info("tender document expired", "document_id", doc.ID)
		}

		if len(docs) < documents.MaxListLimit || !progressed {
			return nil
		}
	}
	return nil
}

func (p *Processor) invalidate(id string) {
	for _, inv := range p.invalidators {
		inv.InvalidateByTag(cache.DocumentTag(id))
		inv.InvalidateByTag(cache.DocumentsTag)
	}
}

// Tick runs the processor once, logging instead of returning failures.
// It is meant for sweep.RunLoop.
func (p *Processor) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := p.Run(ctx)
	if err != nil {
		p.logger.Error("deadline processing failed", "error", err)
	}
	if len(report.Expired) > 0 || len(report.Reminders) > 0 {
		p.logger.Info("deadline processing complete",
			"expired", len(report.Expired),
			"reminders", len(report.Reminders),
		)
	}
}
