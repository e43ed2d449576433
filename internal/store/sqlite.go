package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"anima-bot/internal/profile"
)

// timeLayout sorts lexicographically for UTC timestamps, so range scans on
// created_at work with plain string comparison.
const timeLayout = "2006-01-02 15:04:05.000"

// SQLite implements Store on a single-file database.
type SQLite struct {
	conn *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Прагма в DSN действует на каждое соединение пула, иначе каскады FK
	// перестают работать после пересоздания соединения.
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &SQLite{conn: conn}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.conn.Close() }

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_profile (
			user_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			locale TEXT NOT NULL DEFAULT '',
			facts TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS psycho_profile (
			user_id INTEGER PRIMARY KEY,
			ei REAL NOT NULL DEFAULT 0.5,
			sn REAL NOT NULL DEFAULT 0.5,
			tf REAL NOT NULL DEFAULT 0.5,
			jp REAL NOT NULL DEFAULT 0.5,
			confidence REAL NOT NULL DEFAULT 0.3,
			mbti_type TEXT,
			anchors TEXT NOT NULL DEFAULT '[]',
			state TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES user_profile(user_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS dialog_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			role TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			emotion TEXT,
			mi_phase TEXT,
			topic TEXT,
			relevance INTEGER NOT NULL DEFAULT 1,
			axes TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES user_profile(user_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS processed_updates (
			update_id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS daily_topics (
			user_id INTEGER NOT NULL,
			day TEXT NOT NULL,
			topics TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			PRIMARY KEY(user_id, day),
			FOREIGN KEY(user_id) REFERENCES user_profile(user_id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_dialog_events_user ON dialog_events(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_dialog_events_created ON dialog_events(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}
	return nil
}

// InTx runs fn inside one transaction; any error rolls everything back.
func (s *SQLite) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Admit(updateID int64) (bool, error) {
	res, err := t.tx.Exec(
		`INSERT OR IGNORE INTO processed_updates(update_id, created_at) VALUES(?, ?)`,
		updateID, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("admit update %d: %w", updateID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqliteTx) EnsureUser(u User) error {
	now := formatTime(time.Now())
	_, err := t.tx.Exec(
		`INSERT INTO user_profile(user_id, username, first_name, last_name, locale, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE username END,
			first_name = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE first_name END,
			last_name = CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE last_name END,
			locale = CASE WHEN excluded.locale != '' THEN excluded.locale ELSE locale END,
			updated_at = excluded.updated_at`,
		u.ID, u.Username, u.FirstName, u.LastName, u.Locale, now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", u.ID, err)
	}
	return nil
}

func (t *sqliteTx) AppendEvent(ev Event) (int64, error) {
	axes, err := marshalAxes(ev.Axes)
	if err != nil {
		return 0, err
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := t.tx.Exec(
		`INSERT INTO dialog_events(user_id, role, text, emotion, mi_phase, topic, relevance, axes, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(ev.UserID), ev.Role, ev.Text,
		nullableStr(ev.Emotion), nullableStr(ev.MIPhase), nullableStr(ev.Topic),
		boolToInt(ev.Relevance), axes, formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return res.LastInsertId()
}

func (t *sqliteTx) PsychoProfile(userID int64) (profile.Profile, bool, error) {
	return scanProfile(t.tx.QueryRow(selectProfileSQL, userID), userID)
}

func (t *sqliteTx) SavePsychoProfile(p profile.Profile) error {
	return saveProfile(t.tx.Exec, p)
}

const selectProfileSQL = `SELECT ei, sn, tf, jp, confidence, mbti_type, anchors, state, updated_at
	FROM psycho_profile WHERE user_id = ?`

type rowScanner interface{ Scan(dest ...any) error }

func scanProfile(row rowScanner, userID int64) (profile.Profile, bool, error) {
	var (
		p       profile.Profile
		mbti    sql.NullString
		anchors string
		updated string
	)
	p.UserID = userID
	err := row.Scan(&p.EI, &p.SN, &p.TF, &p.JP, &p.Confidence, &mbti, &anchors, &p.State, &updated)
	if err == sql.ErrNoRows {
		return profile.Profile{}, false, nil
	}
	if err != nil {
		return profile.Profile{}, false, fmt.Errorf("load profile %d: %w", userID, err)
	}
	p.MBTIType = mbti.String
	if anchors != "" {
		if err := json.Unmarshal([]byte(anchors), &p.Anchors); err != nil {
			return profile.Profile{}, false, fmt.Errorf("decode anchors for %d: %w", userID, err)
		}
	}
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return p, true, nil
}

type execFunc func(query string, args ...any) (sql.Result, error)

func saveProfile(exec execFunc, p profile.Profile) error {
	anchors, err := json.Marshal(p.Anchors)
	if err != nil {
		return fmt.Errorf("encode anchors: %w", err)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = exec(
		`INSERT INTO psycho_profile(user_id, ei, sn, tf, jp, confidence, mbti_type, anchors, state, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			ei = excluded.ei, sn = excluded.sn, tf = excluded.tf, jp = excluded.jp,
			confidence = excluded.confidence, mbti_type = excluded.mbti_type,
			anchors = excluded.anchors, state = excluded.state, updated_at = excluded.updated_at`,
		p.UserID, p.EI, p.SN, p.TF, p.JP, p.Confidence,
		nullableStr(p.MBTIType), string(anchors), p.State, formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("save profile %d: %w", p.UserID, err)
	}
	return nil
}

func (s *SQLite) Seen(ctx context.Context, updateID int64) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx,
		`SELECT 1 FROM processed_updates WHERE update_id = ?`, updateID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seen update %d: %w", updateID, err)
	}
	return true, nil
}

func (s *SQLite) User(ctx context.Context, userID int64) (User, bool, error) {
	var (
		u       User
		facts   string
		created string
		updated string
	)
	u.ID = userID
	err := s.conn.QueryRowContext(ctx,
		`SELECT username, first_name, last_name, locale, facts, created_at, updated_at
		 FROM user_profile WHERE user_id = ?`, userID,
	).Scan(&u.Username, &u.FirstName, &u.LastName, &u.Locale, &facts, &created, &updated)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if facts != "" {
		if err := json.Unmarshal([]byte(facts), &u.Facts); err != nil {
			return User{}, false, fmt.Errorf("decode facts for %d: %w", userID, err)
		}
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	u.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return u, true, nil
}

// MergeFacts folds patch into the user's facts mapping. Existing keys not
// present in patch are kept.
func (s *SQLite) MergeFacts(ctx context.Context, userID int64, patch map[string]any) error {
	return s.InTx(ctx, func(tx Tx) error {
		stx := tx.(*sqliteTx)
		var raw string
		err := stx.tx.QueryRow(`SELECT facts FROM user_profile WHERE user_id = ?`, userID).Scan(&raw)
		if err == sql.ErrNoRows {
			if err := stx.EnsureUser(User{ID: userID}); err != nil {
				return err
			}
			raw = "{}"
		} else if err != nil {
			return fmt.Errorf("load facts for %d: %w", userID, err)
		}
		facts := map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &facts); err != nil {
				facts = map[string]any{}
			}
		}
		for k, v := range patch {
			facts[k] = v
		}
		merged, err := json.Marshal(facts)
		if err != nil {
			return fmt.Errorf("encode facts: %w", err)
		}
		_, err = stx.tx.Exec(
			`UPDATE user_profile SET facts = ?, updated_at = ? WHERE user_id = ?`,
			string(merged), formatTime(time.Now()), userID,
		)
		if err != nil {
			return fmt.Errorf("save facts for %d: %w", userID, err)
		}
		return nil
	})
}

func (s *SQLite) PsychoProfile(ctx context.Context, userID int64) (profile.Profile, bool, error) {
	return scanProfile(s.conn.QueryRowContext(ctx, selectProfileSQL, userID), userID)
}

func (s *SQLite) SavePsychoProfile(ctx context.Context, p profile.Profile) error {
	return saveProfile(func(query string, args ...any) (sql.Result, error) {
		return s.conn.ExecContext(ctx, query, args...)
	}, p)
}

func (s *SQLite) EventsForDay(ctx context.Context, day time.Time, userID int64, role string) ([]Event, error) {
	start, end := DayBounds(day)
	query := `SELECT id, user_id, role, text, emotion, mi_phase, topic, relevance, axes, created_at
		FROM dialog_events WHERE created_at >= ? AND created_at < ?`
	args := []any{formatTime(start), formatTime(end)}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY id`
	return s.queryEvents(ctx, query, args...)
}

func (s *SQLite) RecentEvents(ctx context.Context, userID int64, limit int) ([]Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, user_id, role, text, emotion, mi_phase, topic, relevance, axes, created_at
		 FROM dialog_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
}

func (s *SQLite) LastPhase(ctx context.Context, userID int64) (string, error) {
	var phase sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT mi_phase FROM dialog_events WHERE user_id = ? ORDER BY id DESC LIMIT 1`,
		userID,
	).Scan(&phase)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last phase for %d: %w", userID, err)
	}
	return phase.String, nil
}

func (s *SQLite) Confidences(ctx context.Context) ([]float64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT confidence FROM psycho_profile`)
	if err != nil {
		return nil, fmt.Errorf("confidences: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) UserActivity(ctx context.Context, since time.Time) (int, int, error) {
	var active, total int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM dialog_events WHERE user_id IS NOT NULL AND created_at >= ?`,
		formatTime(since.UTC()),
	).Scan(&active)
	if err != nil {
		return 0, 0, fmt.Errorf("active users: %w", err)
	}
	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM dialog_events WHERE user_id IS NOT NULL`,
	).Scan(&total)
	if err != nil {
		return 0, 0, fmt.Errorf("total users: %w", err)
	}
	return active, total, nil
}

func (s *SQLite) DailyTopics(ctx context.Context, userID int64, day time.Time) ([]string, bool, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx,
		`SELECT topics FROM daily_topics WHERE user_id = ? AND day = ?`,
		userID, DayKey(day),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("daily topics for %d: %w", userID, err)
	}
	var topics []string
	if err := json.Unmarshal([]byte(raw), &topics); err != nil {
		return nil, false, fmt.Errorf("decode topics: %w", err)
	}
	return topics, true, nil
}

func (s *SQLite) SaveDailyTopics(ctx context.Context, userID int64, day time.Time, topics []string) error {
	raw, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO daily_topics(user_id, day, topics, created_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(user_id, day) DO UPDATE SET topics = excluded.topics, created_at = excluded.created_at`,
		userID, DayKey(day), string(raw), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save topics for %d: %w", userID, err)
	}
	return nil
}

func (s *SQLite) DeleteUser(ctx context.Context, userID int64) error {
	// FK cascades remove psycho_profile, dialog_events and daily_topics.
	_, err := s.conn.ExecContext(ctx, `DELETE FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", userID, err)
	}
	return nil
}

func (s *SQLite) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			ev                    Event
			userID                sql.NullInt64
			emotion, phase, topic sql.NullString
			axes                  sql.NullString
			relevance             int
			created               string
		)
		if err := rows.Scan(&ev.ID, &userID, &ev.Role, &ev.Text, &emotion, &phase, &topic, &relevance, &axes, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.UserID = userID.Int64
		ev.Emotion = emotion.String
		ev.MIPhase = phase.String
		ev.Topic = topic.String
		ev.Relevance = relevance != 0
		if axes.Valid && axes.String != "" {
			if err := json.Unmarshal([]byte(axes.String), &ev.Axes); err != nil {
				return nil, fmt.Errorf("decode axes for event %d: %w", ev.ID, err)
			}
		}
		ev.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func marshalAxes(axes []profile.Signal) (any, error) {
	if len(axes) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(axes)
	if err != nil {
		return nil, fmt.Errorf("encode axes: %w", err)
	}
	return string(raw), nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
