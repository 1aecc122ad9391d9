// Package automation sequences one onboarding run end to end: fetch the
// exports, filter the leads, provision platform accounts, create tracker
// spreadsheets, write the tracker links back to the CRM and report the
// outcome to chat.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/lwai/onboarding/internal/chat"
	"github.com/lwai/onboarding/internal/filter"
	"github.com/lwai/onboarding/internal/hubspot"
	"github.com/lwai/onboarding/internal/lead"
	"github.com/lwai/onboarding/internal/pkg/logger"
	"github.com/lwai/onboarding/internal/provision"
	"github.com/lwai/onboarding/internal/refdata"
	"github.com/lwai/onboarding/internal/timeback"
	"github.com/lwai/onboarding/internal/tracker"
)

// LeadSource supplies the CRM lead export and the existing-account set.
type LeadSource interface {
	FetchLeads(ctx context.Context) ([]lead.Lead, error)
	FetchAccounts(ctx context.Context) (lead.AccountSet, error)
}

// Platform is the learning-platform API surface the run needs.
type Platform interface {
	Authenticate(ctx context.Context) error
	Applications(ctx context.Context, needed []string) (map[string]string, error)
	CreateStudent(ctx context.Context, payload timeback.AccountPayload) (string, error)
	AssignProfile(ctx context.Context, userID string, assignment timeback.ProfileAssignment) error
}

// Trackers provisions per-student tracker spreadsheets.
type Trackers interface {
	ProvisionAll(ctx context.Context, students []tracker.Student) []tracker.Result
}

// CRM writes tracker links back to contact records.
type CRM interface {
	Authenticate(ctx context.Context) error
	UpdateTrackerLinks(ctx context.Context, links map[string]string) []hubspot.UpdateResult
}

// Notifier reports run lifecycle events.
type Notifier interface {
	NotifyStart(ctx context.Context, total int) error
	NotifyComplete(ctx context.Context, summary chat.RunSummary) error
	NotifyError(ctx context.Context, errMsg string) error
}

// Options tune one run.
type Options struct {
	LeadMaxAge time.Duration

	// Simulate skips the platform account-creation and assignment calls
	// while every other step (catalog load, log writes, trackers, CRM
	// updates, notifications) runs for real.
	Simulate bool
}

// Runner owns the dependencies of the onboarding run.
type Runner struct {
	source   LeadSource
	store    *refdata.Store
	platform Platform
	trackers Trackers
	crm      CRM
	notifier Notifier
	opts     Options
	now      func() time.Time
}

// NewRunner wires a runner.
func NewRunner(source LeadSource, store *refdata.Store, platform Platform, trackers Trackers, crm CRM, notifier Notifier, opts Options) *Runner {
	return &Runner{
		source:   source,
		store:    store,
		platform: platform,
		trackers: trackers,
		crm:      crm,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// SetNow replaces the clock (useful for testing).
func (r *Runner) SetNow(now func() time.Time) {
	r.now = now
}

// Run executes one onboarding pass. A run-level failure is reported to
// chat before being returned; per-lead failures are absorbed into the
// summary instead.
func (r *Runner) Run(ctx context.Context) (chat.RunSummary, error) {
	summary, err := r.run(ctx)
	if err != nil {
		if nerr := r.notifier.NotifyError(ctx, err.Error()); nerr != nil {
			logger.Warn("error notification failed", "error", nerr.Error())
		}
		return summary, err
	}
	return summary, nil
}

func (r *Runner) run(ctx context.Context) (chat.RunSummary, error) {
	started := r.now()

	leads, err := r.source.FetchLeads(ctx)
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("fetch leads: %w", err)
	}
	accounts, err := r.source.FetchAccounts(ctx)
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("fetch accounts: %w", err)
	}

	segments, err := r.store.Segments(ctx)
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("load segments: %w", err)
	}
	assessments, err := r.store.Assessments(ctx)
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("load assessments: %w", err)
	}
	blacklist, err := r.store.Blacklist(ctx)
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("load blacklist: %w", err)
	}

	filtered := filter.Apply(leads, accounts, blacklist, segments, r.now(), r.opts.LeadMaxAge)
	logger.Info("leads filtered", "input", len(leads), "eligible", len(filtered))

	// Nothing to do: report one all-zero completion and stop. The start
	// notification is skipped on purpose.
	if len(filtered) == 0 {
		summary := chat.RunSummary{}
		if err := r.notifier.NotifyComplete(ctx, summary); err != nil {
			logger.Warn("completion notification failed", "error", err.Error())
		}
		return summary, nil
	}

	if err := r.notifier.NotifyStart(ctx, len(filtered)); err != nil {
		logger.Warn("start notification failed", "error", err.Error())
	}

	if err := r.platform.Authenticate(ctx); err != nil {
		return chat.RunSummary{}, fmt.Errorf("platform auth: %w", err)
	}
	apps, err := r.platform.Applications(ctx, neededApps(filtered, segments))
	if err != nil {
		return chat.RunSummary{}, fmt.Errorf("load applications: %w", err)
	}

	builder := provision.NewBuilder(segments, assessments, apps)
	results := builder.BuildAll(filtered, r.now())

	executor := provision.NewExecutor(r.platform)
	executor.SetNow(r.now)

	var (
		sum       provision.Summary
		successes []provision.SuccessEntry
		failures  []provision.FailEntry
	)
	if r.opts.Simulate {
		sum, successes, failures = executor.Simulate(results)
	} else {
		sum, successes, failures = executor.Execute(ctx, results)
	}

	r.writeLogs(ctx, successes, failures)
	r.provisionTrackers(ctx, results, successes)

	summary := buildSummary(sum, successes, failures, len(filtered), r.now().Sub(started))
	if err := r.notifier.NotifyComplete(ctx, summary); err != nil {
		logger.Warn("completion notification failed", "error", err.Error())
	}
	return summary, nil
}

// writeLogs flushes the run's success and fail entries to the mapping
// spreadsheet. Log-write failures are not fatal.
func (r *Runner) writeLogs(ctx context.Context, successes []provision.SuccessEntry, failures []provision.FailEntry) {
	var successRows [][]string
	for _, e := range successes {
		successRows = append(successRows, e.Row())
	}
	if err := r.store.AppendRows(ctx, refdata.WorksheetSuccessLog, provision.SuccessLogHeader, successRows); err != nil {
		logger.Error("write success log", "error", err.Error())
	}

	var failRows [][]string
	for _, e := range failures {
		failRows = append(failRows, e.Row())
	}
	if err := r.store.AppendRows(ctx, refdata.WorksheetFailLog, provision.FailLogHeader, failRows); err != nil {
		logger.Error("write fail log", "error", err.Error())
	}
}

// provisionTrackers creates tracker spreadsheets for every account the run
// created, records the successful ones in the all_trackers worksheet and
// pushes the links to the CRM.
func (r *Runner) provisionTrackers(ctx context.Context, results []provision.Result, successes []provision.SuccessEntry) {
	byEmail := make(map[string]provision.Result, len(results))
	for _, res := range results {
		if res.Email != "" {
			byEmail[res.Email] = res
		}
	}

	students := make([]tracker.Student, 0, len(successes))
	for _, s := range successes {
		res, ok := byEmail[s.Email]
		if !ok {
			continue
		}
		students = append(students, tracker.Student{
			Email:      res.Email,
			Segment:    res.Segment,
			AppName:    res.AppName,
			Grade:      res.Grade,
			SignupDate: res.SignupDate,
		})
	}
	if len(students) == 0 {
		return
	}

	trackerResults := r.trackers.ProvisionAll(ctx, students)

	var rows [][]string
	links := make(map[string]string)
	for _, tr := range trackerResults {
		if !tr.Succeeded() {
			logger.Warn("tracker creation failed", "email", tr.Email, "error", tr.Err)
			continue
		}
		rows = append(rows, tr.Row(r.now()))
		links[tr.Email] = tr.Link
	}
	if err := r.store.AppendRows(ctx, refdata.WorksheetAllTrackers, tracker.AllTrackersHeader, rows); err != nil {
		logger.Error("write all_trackers", "error", err.Error())
	}

	if len(links) == 0 {
		return
	}
	if err := r.crm.Authenticate(ctx); err != nil {
		logger.Error("hubspot auth failed", "error", err.Error())
		return
	}
	for _, res := range r.crm.UpdateTrackerLinks(ctx, links) {
		if res.Err != "" {
			logger.Warn("hubspot update failed", "email", res.Email, "error", res.Err)
		}
	}
}

// neededApps collects the distinct app names configured for the filtered
// leads' segments, in first-seen order.
func neededApps(leads []lead.Lead, segments refdata.SegmentTable) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range leads {
		seg, ok := segments.Lookup(l.Segment)
		if !ok || seg.App == "" {
			continue
		}
		if _, dup := seen[seg.App]; dup {
			continue
		}
		seen[seg.App] = struct{}{}
		out = append(out, seg.App)
	}
	return out
}

func buildSummary(sum provision.Summary, successes []provision.SuccessEntry, failures []provision.FailEntry, total int, elapsed time.Duration) chat.RunSummary {
	out := chat.RunSummary{
		TotalProcessed:  total,
		AccountsCreated: sum.AccountsCreated,
		AccountsFailed:  sum.AccountsFailed,
		Elapsed:         elapsed,
	}
	for _, s := range successes {
		out.Successes = append(out.Successes, chat.SuccessDetail{Email: s.Email, AppName: s.AppName})
	}
	// Only account-creation failures make the notification; assignment
	// failures stay in the fail log.
	for _, f := range failures {
		if f.Step == provision.StepAccountCreation {
			out.Failures = append(out.Failures, chat.FailureDetail{Email: f.Email, Reason: f.Error})
		}
	}
	return out
}
