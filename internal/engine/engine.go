package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"anima-bot/internal/metrics"
	"anima-bot/internal/profile"
	"anima-bot/internal/quality"
	"anima-bot/internal/store"
)

// ErrDuplicateUpdate signals an idempotent no-op: the update was already
// applied and nothing was written. Not a failure.
var ErrDuplicateUpdate = errors.New("duplicate update")

// ErrNotFound is returned when a profile is queried before any event exists.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before anything is committed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// TurnEvent is one dialog turn inside an ingested update.
type TurnEvent struct {
	Role      string
	Text      string
	Emotion   string
	MIPhase   string
	Topic     string
	Relevance bool
	Axes      []profile.Signal
}

// Engine ties the idempotency guard, the event log, the profile updater and
// the aggregates together. Writes for one user serialize through a per-user
// lock; different users proceed in parallel.
type Engine struct {
	store   store.Store
	updater profile.Updater
	eval    *quality.Evaluator

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(st store.Store, updater profile.Updater, eval *quality.Evaluator) *Engine {
	return &Engine{
		store:   st,
		updater: updater,
		eval:    eval,
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) Evaluator() *quality.Evaluator { return e.eval }

func (e *Engine) Updater() profile.Updater { return e.updater }

func (e *Engine) userLock(userID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// Ingest appends one turn under the given update id.
func (e *Engine) Ingest(ctx context.Context, updateID int64, user store.User, ev TurnEvent) (int64, error) {
	ids, err := e.IngestBatch(ctx, updateID, user, []TurnEvent{ev})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, &ValidationError{Reason: "no event stored"}
	}
	return ids[0], nil
}

// IngestBatch applies all turns of one upstream update atomically: the
// idempotency record, the appended events and the profile mutation commit
// together or not at all. A repeated update id returns ErrDuplicateUpdate
// with no side effects. One malformed event or axis signal is dropped and
// logged without discarding the rest of the batch.
func (e *Engine) IngestBatch(ctx context.Context, updateID int64, user store.User, events []TurnEvent) ([]int64, error) {
	if updateID <= 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("bad update id %d", updateID)}
	}
	// Без пользователя допустимы только системные события.
	if user.ID == 0 {
		for _, ev := range events {
			if ev.Role != store.RoleSystem {
				return nil, &ValidationError{Reason: "missing user id"}
			}
		}
	}

	l := e.userLock(user.ID)
	l.Lock()
	defer l.Unlock()

	var ids []int64
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		admitted, err := tx.Admit(updateID)
		if err != nil {
			return err
		}
		if !admitted {
			return ErrDuplicateUpdate
		}
		if user.ID != 0 {
			if err := tx.EnsureUser(user); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		for _, ev := range events {
			if ev.Role != store.RoleUser && ev.Role != store.RoleAssistant && ev.Role != store.RoleSystem {
				log.Printf("dropping event with bad role %q (update=%d user=%d)", ev.Role, updateID, user.ID)
				continue
			}
			id, err := tx.AppendEvent(store.Event{
				UserID:    user.ID,
				Role:      ev.Role,
				Text:      ev.Text,
				Emotion:   ev.Emotion,
				MIPhase:   ev.MIPhase,
				Topic:     ev.Topic,
				Relevance: ev.Relevance,
				Axes:      ev.Axes,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)

			if ev.Role == store.RoleUser && len(ev.Axes) > 0 {
				if err := e.applyProfileTx(tx, user.ID, id, ev.Axes, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// applyProfileTx runs the read-modify-write of one profile row inside the
// ingestion transaction. A missing row is lazily created at the neutral point.
func (e *Engine) applyProfileTx(tx store.Tx, userID, eventID int64, signals []profile.Signal, now time.Time) error {
	p, ok, err := tx.PsychoProfile(userID)
	if err != nil {
		return err
	}
	if !ok {
		p = profile.NewDefault(userID)
	}
	for _, verr := range e.updater.Apply(&p, eventID, signals, now) {
		log.Printf("profile signal rejected (user=%d event=%d): %v", userID, eventID, verr)
	}
	return tx.SavePsychoProfile(p)
}

// SetBaseline stores the questionnaire-derived starting profile. The user row
// is created when missing, so the profile never dangles.
func (e *Engine) SetBaseline(ctx context.Context, userID int64, ei, sn, tf, jp, confidence float64) error {
	if userID == 0 {
		return &ValidationError{Reason: "missing user id"}
	}
	l := e.userLock(userID)
	l.Lock()
	defer l.Unlock()

	return e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureUser(store.User{ID: userID}); err != nil {
			return err
		}
		p, ok, err := tx.PsychoProfile(userID)
		if err != nil {
			return err
		}
		if !ok {
			p = profile.NewDefault(userID)
		}
		p.EI, p.SN, p.TF, p.JP = ei, sn, tf, jp
		p.Confidence = confidence
		if confidence >= e.updater.PublishThreshold {
			p.MBTIType = e.updater.MBTI(&p)
		}
		p.UpdatedAt = time.Now().UTC()
		return tx.SavePsychoProfile(p)
	})
}

// Profile returns the current psychometric estimate for a user.
func (e *Engine) Profile(ctx context.Context, userID int64) (profile.Profile, error) {
	p, ok, err := e.store.PsychoProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if !ok {
		return profile.Profile{}, ErrNotFound
	}
	return p, nil
}

// Seen reports whether an update id was already applied, without writing
// anything. The transactional Admit remains the authoritative check.
func (e *Engine) Seen(ctx context.Context, updateID int64) (bool, error) {
	return e.store.Seen(ctx, updateID)
}

// DailyQuality aggregates assistant replies for one UTC day. userID 0 spans
// all users. ok is false when the bucket is empty.
func (e *Engine) DailyQuality(ctx context.Context, userID int64, day time.Time) (metrics.DailyQuality, bool, error) {
	events, err := e.store.EventsForDay(ctx, day, userID, store.RoleAssistant)
	if err != nil {
		return metrics.DailyQuality{}, false, err
	}
	dq, ok := metrics.Quality(events, day, e.eval)
	return dq, ok, nil
}

// PhaseDistribution counts assistant events per MI phase for one day, all users.
func (e *Engine) PhaseDistribution(ctx context.Context, day time.Time) (map[string]int, error) {
	events, err := e.store.EventsForDay(ctx, day, 0, store.RoleAssistant)
	if err != nil {
		return nil, err
	}
	return metrics.PhaseDistribution(events, day), nil
}

// AvgLength is the mean reply length for one day, all users.
func (e *Engine) AvgLength(ctx context.Context, day time.Time) (float64, bool, error) {
	events, err := e.store.EventsForDay(ctx, day, 0, store.RoleAssistant)
	if err != nil {
		return 0, false, err
	}
	avg, ok := metrics.AvgLength(events, day)
	return avg, ok, nil
}

// ConfidenceHistogram is the current snapshot of estimate reliability.
func (e *Engine) ConfidenceHistogram(ctx context.Context) ([]metrics.Bucket, error) {
	confidences, err := e.store.Confidences(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.ConfidenceHistogram(confidences), nil
}

// Retention7d is the share of ever-seen users active in the trailing 7 days.
func (e *Engine) Retention7d(ctx context.Context, now time.Time) (float64, error) {
	active, total, err := e.store.UserActivity(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return 0, err
	}
	return metrics.Retention(active, total), nil
}

// LastPhase returns the MI phase of the user's latest event, "" when none.
func (e *Engine) LastPhase(ctx context.Context, userID int64) (string, error) {
	return e.store.LastPhase(ctx, userID)
}

// RecentEvents lists the user's latest turns, newest first.
func (e *Engine) RecentEvents(ctx context.Context, userID int64, limit int) ([]store.Event, error) {
	return e.store.RecentEvents(ctx, userID, limit)
}

// AppState reads the dialogue state kept under the user's facts mapping.
func (e *Engine) AppState(ctx context.Context, userID int64) (map[string]any, error) {
	u, ok, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok || u.Facts == nil {
		return map[string]any{}, nil
	}
	state, _ := u.Facts["app_state"].(map[string]any)
	if state == nil {
		state = map[string]any{}
	}
	return state, nil
}

// SetAppState merges the dialogue state back into the facts mapping.
func (e *Engine) SetAppState(ctx context.Context, userID int64, state map[string]any) error {
	return e.store.MergeFacts(ctx, userID, map[string]any{"app_state": state})
}

// DailyTopics reads the per-day topic list written by the topic extractor.
func (e *Engine) DailyTopics(ctx context.Context, userID int64, day time.Time) ([]string, bool, error) {
	return e.store.DailyTopics(ctx, userID, day)
}

// AddDailyTopics unions the detected topics into the user's day bucket.
// Already-present labels keep their position.
func (e *Engine) AddDailyTopics(ctx context.Context, userID int64, day time.Time, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	l := e.userLock(userID)
	l.Lock()
	defer l.Unlock()

	existing, _, err := e.store.DailyTopics(ctx, userID, day)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	merged := existing
	for _, t := range existing {
		seen[t] = true
	}
	changed := false
	for _, t := range topics {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.store.SaveDailyTopics(ctx, userID, day, merged)
}

// DeleteUser removes the user and everything derived from their events.
func (e *Engine) DeleteUser(ctx context.Context, userID int64) error {
	l := e.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return e.store.DeleteUser(ctx, userID)
}
