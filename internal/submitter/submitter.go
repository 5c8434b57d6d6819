// Package submitter orchestrates the submission workflow: eligibility,
// deduplication, deferred execution, remote submission, record keeping and
// outcome notification.
package submitter

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/config"
	"github.com/spunwebtech/wayback-submitter/internal/content"
	"github.com/spunwebtech/wayback-submitter/internal/notify"
	"github.com/spunwebtech/wayback-submitter/internal/policy"
	"github.com/spunwebtech/wayback-submitter/internal/store"
	"github.com/spunwebtech/wayback-submitter/internal/telemetry"
)

// RemoteClient is the slice of the archive client the orchestrator uses.
type RemoteClient interface {
	Submit(ctx context.Context, rawURL string, strategy archive.Strategy, creds archive.Credentials) archive.Outcome
}

// Disposition says what HandlePublish/HandleUpdate did with an event.
type Disposition string

// Dispositions.
const (
	DispositionSubmitted     Disposition = "submitted"
	DispositionQueued        Disposition = "queued"
	DispositionSkippedPolicy Disposition = "skipped_policy"
	DispositionSkippedRecent Disposition = "skipped_recent"
)

// Result reports the outcome of handling one content event.
type Result struct {
	Disposition Disposition               `json:"disposition"`
	Record      *archive.SubmissionRecord `json:"record,omitempty"`
	DueAt       *time.Time                `json:"due_at,omitempty"`
}

// Deps wires the orchestrator's collaborators. Store, Client, Policy, Source
// and Clock are required; Publisher and Logger may be nil.
type Deps struct {
	Store     store.SubmissionStore
	Client    RemoteClient
	Policy    *policy.Policy
	Source    content.Source
	Publisher notify.Publisher
	Clock     archive.Clock
	Config    config.Config
	Logger    *zap.Logger

	// Schedule runs fn after d. Defaults to time.AfterFunc; tests inject
	// a synchronous version.
	Schedule func(d time.Duration, fn func())
	// Sleep paces sequential sweeps. Defaults to time.Sleep.
	Sleep func(d time.Duration)
}

// Submitter runs the submission workflow. Sweeps are sequential on purpose:
// the archive endpoint rate-limits aggressively, so parallel retries only
// trade one failure mode for another.
type Submitter struct {
	store     store.SubmissionStore
	client    RemoteClient
	policy    *policy.Policy
	source    content.Source
	publisher notify.Publisher
	clock     archive.Clock
	cfg       config.Config
	logger    *zap.Logger
	schedule  func(d time.Duration, fn func())
	sleep     func(d time.Duration)
}

// New constructs a Submitter from its dependencies.
func New(deps Deps) *Submitter {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Schedule == nil {
		deps.Schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	return &Submitter{
		store:     deps.Store,
		client:    deps.Client,
		policy:    deps.Policy,
		source:    deps.Source,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		cfg:       deps.Config,
		logger:    deps.Logger,
		schedule:  deps.Schedule,
		sleep:     deps.Sleep,
	}
}

func (s *Submitter) policyConfig() policy.Config {
	return policy.Config{
		Enabled:        s.cfg.Submit.Enabled,
		AllowedTypes:   s.cfg.Submit.ContentTypes,
		SubmitOnUpdate: s.cfg.Submit.OnUpdate,
	}
}

func (s *Submitter) strategy() (archive.Strategy, archive.Credentials) {
	if s.cfg.Archive.Method == config.MethodAPI {
		return archive.StrategySigned, archive.Credentials{
			AccessKey: s.cfg.Archive.AccessKey,
			SecretKey: s.cfg.Archive.SecretKey,
		}
	}
	return archive.StrategySimple, archive.Credentials{}
}

// HandlePublish processes a publish event: eligibility, then the repeat
// window, then either an immediate submission or a pending record plus a
// deferred trigger.
func (s *Submitter) HandlePublish(ctx context.Context, item archive.ContentItem) (Result, error) {
	if !s.policy.ShouldSubmit(item, s.policyConfig()) {
		return Result{Disposition: DispositionSkippedPolicy}, nil
	}

	now := s.clock.Now()
	recent, err := s.store.RecentlySubmitted(ctx, item.ID, now.Add(-s.cfg.DedupWindow()))
	if err != nil {
		return Result{}, err
	}
	if recent {
		return Result{Disposition: DispositionSkippedRecent}, nil
	}

	if delay := s.cfg.SubmitDelay(); delay > 0 {
		return s.deferSubmission(ctx, item, now, delay)
	}

	rec, err := s.Execute(ctx, item)
	if err != nil {
		return Result{}, err
	}
	return Result{Disposition: DispositionSubmitted, Record: &rec}, nil
}

// HandleUpdate processes an update event. Updates only submit when the
// update toggle is on; otherwise they follow the publish path.
func (s *Submitter) HandleUpdate(ctx context.Context, item archive.ContentItem) (Result, error) {
	if !s.cfg.Submit.OnUpdate {
		return Result{Disposition: DispositionSkippedPolicy}, nil
	}
	return s.HandlePublish(ctx, item)
}

// deferSubmission records a pending submission and arms a one-shot trigger. The
// pending record carries the due time so the queue sweep can pick it up if
// the process restarts before the trigger fires.
func (s *Submitter) deferSubmission(ctx context.Context, item archive.ContentItem, now time.Time, delay time.Duration) (Result, error) {
	due := now.Add(delay)
	rec, err := s.store.Append(ctx, store.Draft{
		ContentID:   item.ID,
		SourceURL:   item.URL,
		Status:      archive.StatusPending,
		SubmittedAt: now,
		DueAt:       &due,
	})
	if err != nil {
		return Result{}, err
	}

	pending := rec
	s.schedule(delay, func() {
		s.completePending(context.Background(), pending)
	})

	s.logger.Info("submission deferred",
		zap.Int64("content_id", item.ID),
		zap.String("url", item.URL),
		zap.Time("due_at", due))
	return Result{Disposition: DispositionQueued, Record: &rec, DueAt: &due}, nil
}

// Execute performs one remote submission for a content item and appends the
// resulting record.
func (s *Submitter) Execute(ctx context.Context, item archive.ContentItem) (archive.SubmissionRecord, error) {
	outcome := s.submitRemote(ctx, item.URL)
	now := s.clock.Now()

	rec, err := s.store.Append(ctx, store.Draft{
		ContentID:       item.ID,
		SourceURL:       item.URL,
		Status:          statusFor(outcome),
		ArchiveURL:      outcome.ArchiveURL,
		ResponsePayload: payloadFor(outcome),
		SubmittedAt:     now,
	})
	if err != nil {
		return archive.SubmissionRecord{}, err
	}

	s.notifyOutcome(item.ID, item.URL, outcome)
	return rec, nil
}

// completePending runs a deferred submission and resolves the pending record
// in place, so history keeps one record per attempt. Returns the sweep
// outcome label.
func (s *Submitter) completePending(ctx context.Context, pending archive.SubmissionRecord) string {
	item, ok := s.source.Get(ctx, pending.ContentID)
	if !ok || !item.Published() {
		payload := payloadFor(archive.Outcome{
			Kind:    archive.ErrInvalidInput,
			Message: "content no longer published",
		})
		if err := s.store.UpdateStatus(ctx, pending.ID, archive.StatusFailed, "", payload, s.clock.Now()); err != nil {
			s.logger.Warn("resolve stale pending record", zap.Int64("record_id", pending.ID), zap.Error(err))
		}
		return "stale"
	}

	outcome := s.submitRemote(ctx, item.URL)
	status := statusFor(outcome)
	if err := s.store.UpdateStatus(ctx, pending.ID, status, outcome.ArchiveURL, payloadFor(outcome), s.clock.Now()); err != nil {
		s.logger.Error("resolve pending record", zap.Int64("record_id", pending.ID), zap.Error(err))
		return "error"
	}
	s.notifyOutcome(item.ID, item.URL, outcome)
	return string(status)
}

// ProcessQueue resolves pending records whose due time has passed. It is the
// restart safety net for deferred submissions whose in-process trigger was
// lost.
func (s *Submitter) ProcessQueue(ctx context.Context) (int, error) {
	telemetry.ObserveSweepRun("queue")

	due, err := s.store.PendingDue(ctx, s.clock.Now(), s.cfg.Submit.QueueSweepLimit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i, rec := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if i > 0 {
			s.sleep(s.cfg.RetryDelay())
		}
		outcome := s.completePending(ctx, rec)
		telemetry.ObserveSweepItem("queue", outcome)
		processed++
	}
	if processed > 0 {
		s.logger.Info("queue sweep complete", zap.Int("processed", processed))
	}
	return processed, nil
}

// RetrySweep re-submits recent failures, one at a time with a fixed pause.
// Items that disappeared or left the published state are skipped without a
// remote call. Each retry appends a fresh record; the failed record stays.
func (s *Submitter) RetrySweep(ctx context.Context) (int, error) {
	telemetry.ObserveSweepRun("retry")

	failed, err := s.store.FailedWithin(ctx, s.clock.Now().Add(-s.cfg.RetryWindow()), s.cfg.Submit.RetryLimit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, rec := range failed {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}

		item, ok := s.source.Get(ctx, rec.ContentID)
		if !ok || !item.Published() {
			telemetry.ObserveSweepItem("retry", "skipped")
			continue
		}

		if retried > 0 {
			s.sleep(s.cfg.RetryDelay())
		}
		if _, err := s.Execute(ctx, item); err != nil {
			s.logger.Error("retry submission", zap.Int64("content_id", item.ID), zap.Error(err))
			telemetry.ObserveSweepItem("retry", "error")
			continue
		}
		telemetry.ObserveSweepItem("retry", "retried")
		retried++
	}
	if retried > 0 {
		s.logger.Info("retry sweep complete", zap.Int("retried", retried))
	}
	return retried, nil
}

// SubmitNow performs a manual submission for a known content item. Manual
// requests bypass the eligibility rules and the repeat window.
func (s *Submitter) SubmitNow(ctx context.Context, contentID int64) (archive.SubmissionRecord, error) {
	item, ok := s.source.Get(ctx, contentID)
	if !ok {
		return archive.SubmissionRecord{}, store.ErrNotFound
	}
	return s.Execute(ctx, item)
}

// BatchSubmit submits arbitrary URLs sequentially with a pause between
// them. Batch records carry no content id; the URL is the identity.
func (s *Submitter) BatchSubmit(ctx context.Context, urls []string, delay time.Duration) ([]archive.SubmissionRecord, error) {
	if delay < 0 {
		delay = s.cfg.BatchDelay()
	}

	records := make([]archive.SubmissionRecord, 0, len(urls))
	for i, rawURL := range urls {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		if i > 0 && delay > 0 {
			s.sleep(delay)
		}

		outcome := s.submitRemote(ctx, rawURL)
		rec, err := s.store.Append(ctx, store.Draft{
			SourceURL:       rawURL,
			Status:          statusFor(outcome),
			ArchiveURL:      outcome.ArchiveURL,
			ResponsePayload: payloadFor(outcome),
			SubmittedAt:     s.clock.Now(),
		})
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Submitter) submitRemote(ctx context.Context, rawURL string) archive.Outcome {
	strategy, creds := s.strategy()
	start := time.Now()
	outcome := s.client.Submit(ctx, rawURL, strategy, creds)
	telemetry.ObserveRemoteCall("submit", time.Since(start))
	telemetry.ObserveSubmission(s.cfg.Archive.Method, string(statusFor(outcome)))

	if outcome.Success {
		s.logger.Info("url archived",
			zap.String("url", rawURL),
			zap.String("archive_url", outcome.ArchiveURL),
			zap.Int("status_code", outcome.StatusCode))
	} else {
		s.logger.Warn("archive submission failed",
			zap.String("url", rawURL),
			zap.String("error_type", string(outcome.Kind)),
			zap.String("message", outcome.Message))
	}
	return outcome
}

func statusFor(o archive.Outcome) archive.Status {
	if o.Success {
		return archive.StatusSuccess
	}
	return archive.StatusFailed
}

// payloadFor serializes the classified outcome for the response_data column.
func payloadFor(o archive.Outcome) string {
	payload := map[string]any{}
	if o.StatusCode != 0 {
		payload["status_code"] = o.StatusCode
	}
	if o.Kind != archive.ErrNone {
		payload["error_type"] = string(o.Kind)
	}
	if o.Message != "" {
		payload["message"] = o.Message
	}
	if len(payload) == 0 {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

// notifyOutcome publishes the submission outcome best-effort. Delivery never
// blocks or fails a submission.
func (s *Submitter) notifyOutcome(contentID int64, sourceURL string, outcome archive.Outcome) {
	if s.publisher == nil {
		return
	}
	event := notify.EventArchived
	if !outcome.Success {
		event = notify.EventArchiveFailed
	}
	payload := notify.SubmissionEvent{
		Event:      event,
		ContentID:  contentID,
		SourceURL:  sourceURL,
		ArchiveURL: outcome.ArchiveURL,
		ErrorKind:  string(outcome.Kind),
		Message:    outcome.Message,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.publisher.Publish(ctx, event, payload); err != nil {
			s.logger.Warn("publish submission event", zap.Error(err))
		}
	}()
}
