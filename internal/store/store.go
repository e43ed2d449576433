package store

import (
	"context"
	"time"

	"anima-bot/internal/profile"
)

// Roles of dialog events.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User is the identity row plus the open facts mapping. Facts are merged,
// never replaced wholesale, so concurrent writers cannot drop each other's keys.
type User struct {
	ID        int64          `json:"id"`
	Username  string         `json:"username,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Locale    string         `json:"locale,omitempty"`
	Facts     map[string]any `json:"facts,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Event — один ход диалога. Записи только добавляются и никогда не меняются;
// id растёт строго монотонно в порядке вставки.
type Event struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Role      string           `json:"role"`
	Text      string           `json:"text"`
	Emotion   string           `json:"emotion,omitempty"`
	MIPhase   string           `json:"mi_phase,omitempty"`
	Topic     string           `json:"topic,omitempty"`
	Relevance bool             `json:"relevance"`
	Axes      []profile.Signal `json:"axes,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Tx is the write side of one ingestion transaction: the idempotency record,
// the appended events and the profile mutation commit or roll back together.
type Tx interface {
	// Admit returns true the first time an update_id is seen. On false the
	// caller must not append anything for this update.
	Admit(updateID int64) (bool, error)
	EnsureUser(u User) error
	AppendEvent(ev Event) (int64, error)
	PsychoProfile(userID int64) (profile.Profile, bool, error)
	SavePsychoProfile(p profile.Profile) error
}

// Store is the persistence collaborator: an ordered event log with atomic
// multi-row commit plus keyed upsert tables. Implementations must be safe
// for concurrent use.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Seen is a read-only duplicate peek for callers that want to suppress
	// side effects early. Admit inside a transaction stays authoritative.
	Seen(ctx context.Context, updateID int64) (bool, error)

	User(ctx context.Context, userID int64) (User, bool, error)
	MergeFacts(ctx context.Context, userID int64, patch map[string]any) error

	PsychoProfile(ctx context.Context, userID int64) (profile.Profile, bool, error)
	SavePsychoProfile(ctx context.Context, p profile.Profile) error

	// EventsForDay returns events of the UTC day containing `day`, in id
	// order. userID 0 means all users, role "" means all roles.
	EventsForDay(ctx context.Context, day time.Time, userID int64, role string) ([]Event, error)
	RecentEvents(ctx context.Context, userID int64, limit int) ([]Event, error)
	LastPhase(ctx context.Context, userID int64) (string, error)

	Confidences(ctx context.Context) ([]float64, error)
	// UserActivity counts users with at least one event since `since` and ever.
	UserActivity(ctx context.Context, since time.Time) (active, total int, err error)

	DailyTopics(ctx context.Context, userID int64, day time.Time) ([]string, bool, error)
	SaveDailyTopics(ctx context.Context, userID int64, day time.Time, topics []string) error

	// DeleteUser cascades: profile, events and topics go with the user row.
	DeleteUser(ctx context.Context, userID int64) error

	Close() error
}

// DayBounds normalizes t to its UTC calendar day half-open interval.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// DayKey formats the day-bucket grouping key.
func DayKey(t time.Time) string {
	start, _ := DayBounds(t)
	return start.Format("2006-01-02")
}
