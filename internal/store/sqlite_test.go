package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"anima-bot/internal/profile"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "anima.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAdmitOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, want := range []bool{true, false, false} {
		var got bool
		err := s.InTx(ctx, func(tx Tx) error {
			var err error
			got, err = tx.Admit(77)
			return err
		})
		if err != nil {
			t.Fatalf("tx %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("admit attempt %d = %v, want %v", i, got, want)
		}
	}

	seen, err := s.Seen(ctx, 77)
	if err != nil || !seen {
		t.Fatalf("Seen(77) = %v, %v", seen, err)
	}
	if seen, _ := s.Seen(ctx, 78); seen {
		t.Fatalf("unknown update reported as seen")
	}
}

func TestRollbackKeepsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		if ok, err := tx.Admit(5); err != nil || !ok {
			t.Fatalf("admit inside tx: %v %v", ok, err)
		}
		if err := tx.EnsureUser(User{ID: 1}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(Event{UserID: 1, Role: RoleUser, Text: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	// запись о допуске и событие откатились вместе
	if seen, _ := s.Seen(ctx, 5); seen {
		t.Fatalf("admission survived rollback")
	}
	events, err := s.EventsForDay(ctx, time.Now(), 1, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events survived rollback: %d", len(events))
	}
}

func TestAppendAndQueryEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []int64
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.EnsureUser(User{ID: 1, Username: "alice"}); err != nil {
			return err
		}
		if err := tx.EnsureUser(User{ID: 2}); err != nil {
			return err
		}
		for _, ev := range []Event{
			{UserID: 1, Role: RoleUser, Text: "привет", Emotion: "calm", MIPhase: "engage", Relevance: true,
				Axes: []profile.Signal{{Axis: profile.AxisEI, Value: 1, Weight: 0.2}}, CreatedAt: now},
			{UserID: 1, Role: RoleAssistant, Text: "и тебе привет", MIPhase: "engage", CreatedAt: now},
			{UserID: 2, Role: RoleAssistant, Text: "другой пользователь", MIPhase: "focus", CreatedAt: now},
			{UserID: 1, Role: RoleAssistant, Text: "вчерашний", MIPhase: "plan", CreatedAt: now.Add(-48 * time.Hour)},
			{UserID: 0, Role: RoleSystem, Text: "служебная запись", CreatedAt: now},
		} {
			id, err := tx.AppendEvent(ev)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// id строго возрастают в порядке вставки
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not increasing: %v", ids)
		}
	}

	events, err := s.EventsForDay(ctx, now, 1, RoleAssistant)
	if err != nil {
		t.Fatalf("events for day: %v", err)
	}
	if len(events) != 1 || events[0].Text != "и тебе привет" {
		t.Fatalf("day/user/role filter wrong: %+v", events)
	}

	all, err := s.EventsForDay(ctx, now, 0, "")
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("want 4 events in day, got %d", len(all))
	}
	if len(all[0].Axes) != 1 || all[0].Axes[0].Axis != profile.AxisEI {
		t.Fatalf("axes payload lost: %+v", all[0])
	}
	// системная запись хранится без пользователя
	last := all[len(all)-1]
	if last.Role != RoleSystem || last.UserID != 0 {
		t.Fatalf("system event stored wrong: %+v", last)
	}

	phase, err := s.LastPhase(ctx, 2)
	if err != nil || phase != "focus" {
		t.Fatalf("last phase = %q, %v", phase, err)
	}

	recent, err := s.RecentEvents(ctx, 1, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID <= recent[1].ID {
		t.Fatalf("recent order wrong: %+v", recent)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.PsychoProfile(ctx, 1); err != nil || ok {
		t.Fatalf("profile before creation: ok=%v err=%v", ok, err)
	}

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.EnsureUser(User{ID: 1}); err != nil {
			return err
		}
		p := profile.NewDefault(1)
		p.EI = 0.64
		p.Confidence = 0.325
		p.MBTIType = "ENTJ"
		p.Anchors = []profile.Anchor{{EventID: 9, Axis: profile.AxisEI, Value: 0.9, At: time.Now().UTC()}}
		return tx.SavePsychoProfile(p)
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	p, ok, err := s.PsychoProfile(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if p.EI != 0.64 || p.Confidence != 0.325 || p.MBTIType != "ENTJ" {
		t.Fatalf("profile fields lost: %+v", p)
	}
	if len(p.Anchors) != 1 || p.Anchors[0].EventID != 9 {
		t.Fatalf("anchors lost: %+v", p.Anchors)
	}

	confs, err := s.Confidences(ctx)
	if err != nil || len(confs) != 1 || confs[0] != 0.325 {
		t.Fatalf("confidences = %v, %v", confs, err)
	}
}

func TestMergeFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.MergeFacts(ctx, 1, map[string]any{"a": "x"}); err != nil {
		t.Fatalf("merge into missing user: %v", err)
	}
	if err := s.MergeFacts(ctx, 1, map[string]any{"b": float64(2)}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	u, ok, err := s.User(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("user: ok=%v err=%v", ok, err)
	}
	// слияние не затирает прежние ключи
	if u.Facts["a"] != "x" || u.Facts["b"] != float64(2) {
		t.Fatalf("facts merge wrong: %+v", u.Facts)
	}
}

func TestDailyTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	if err := s.MergeFacts(ctx, 1, map[string]any{}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if _, ok, err := s.DailyTopics(ctx, 1, day); err != nil || ok {
		t.Fatalf("topics before save: ok=%v err=%v", ok, err)
	}
	if err := s.SaveDailyTopics(ctx, 1, day, []string{"сон", "работа"}); err != nil {
		t.Fatalf("save topics: %v", err)
	}
	// перезапись дня заменяет список целиком
	if err := s.SaveDailyTopics(ctx, 1, day, []string{"отдых"}); err != nil {
		t.Fatalf("replace topics: %v", err)
	}
	topics, ok, err := s.DailyTopics(ctx, 1, day)
	if err != nil || !ok {
		t.Fatalf("load topics: ok=%v err=%v", ok, err)
	}
	if len(topics) != 1 || topics[0] != "отдых" {
		t.Fatalf("topics = %v", topics)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.EnsureUser(User{ID: 1}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(Event{UserID: 1, Role: RoleUser, Text: "x", CreatedAt: now}); err != nil {
			return err
		}
		return tx.SavePsychoProfile(profile.NewDefault(1))
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.SaveDailyTopics(ctx, 1, now, []string{"тема"}); err != nil {
		t.Fatalf("topics: %v", err)
	}

	// каскад должен сработать и на свежем соединении пула
	s.conn.SetMaxIdleConns(0)
	if _, err := s.conn.ExecContext(ctx, `SELECT 1`); err != nil {
		t.Fatalf("recycle connection: %v", err)
	}

	if err := s.DeleteUser(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok, _ := s.User(ctx, 1); ok {
		t.Fatalf("user survived delete")
	}
	if _, ok, _ := s.PsychoProfile(ctx, 1); ok {
		t.Fatalf("profile survived delete")
	}
	if events, _ := s.EventsForDay(ctx, now, 1, ""); len(events) != 0 {
		t.Fatalf("events survived delete: %d", len(events))
	}
	if _, ok, _ := s.DailyTopics(ctx, 1, now); ok {
		t.Fatalf("topics survived delete")
	}
}

func TestUserActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.InTx(ctx, func(tx Tx) error {
		for _, u := range []User{{ID: 1}, {ID: 2}} {
			if err := tx.EnsureUser(u); err != nil {
				return err
			}
		}
		if _, err := tx.AppendEvent(Event{UserID: 1, Role: RoleUser, Text: "a", CreatedAt: now.Add(-30 * 24 * time.Hour)}); err != nil {
			return err
		}
		_, err := tx.AppendEvent(Event{UserID: 2, Role: RoleUser, Text: "b", CreatedAt: now.Add(-time.Hour)})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	active, total, err := s.UserActivity(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if active != 1 || total != 2 {
		t.Fatalf("activity = %d/%d, want 1/2", active, total)
	}
}
