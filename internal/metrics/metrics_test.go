package metrics

import (
	"strings"
	"testing"
	"time"

	"anima-bot/internal/quality"
	"anima-bot/internal/store"
)

var testDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

// литеральные фикстуры: два ответа ассистента в нужный день, реплика
// пользователя, ответ в другой день и небезопасный ответ
func fixtureEvents() []store.Event {
	good := "Я слышу тебя, это важно. Расскажи подробнее? " + strings.Repeat("и", 60)
	return []store.Event{
		{ID: 1, UserID: 1, Role: store.RoleUser, Text: "привет", CreatedAt: testDay.Add(1 * time.Hour)},
		{ID: 2, UserID: 1, Role: store.RoleAssistant, Text: good, MIPhase: "engage", CreatedAt: testDay.Add(1 * time.Hour)},
		{ID: 3, UserID: 1, Role: store.RoleAssistant, Text: "Поговорим про политику", MIPhase: "focus", CreatedAt: testDay.Add(2 * time.Hour)},
		{ID: 4, UserID: 2, Role: store.RoleAssistant, Text: "ответ в другой день", MIPhase: "engage", CreatedAt: testDay.Add(25 * time.Hour)},
	}
}

func TestQuality(t *testing.T) {
	dq, ok := Quality(fixtureEvents(), testDay, quality.Default())
	if !ok {
		t.Fatalf("bucket with events reported as empty")
	}
	if dq.AnswersTotal != 2 {
		t.Fatalf("answers_total = %d, want 2", dq.AnswersTotal)
	}
	// первый ответ: вопрос + длина + эмпатия = 1.0; второй: ничего = 0
	if dq.AvgQuality != 0.5 {
		t.Errorf("avg_quality = %v, want 0.5", dq.AvgQuality)
	}
	// второй ответ задевает запретную тему
	if dq.SafetyRate != 0.5 {
		t.Errorf("safety_rate = %v, want 0.5", dq.SafetyRate)
	}
	if dq.Day != "2024-01-15" {
		t.Errorf("day = %q", dq.Day)
	}
}

func TestQualityEmptyBucket(t *testing.T) {
	// пустая корзина — отсутствие результата, а не ноль
	if _, ok := Quality(nil, testDay, quality.Default()); ok {
		t.Fatalf("empty bucket must be absent")
	}
	userOnly := []store.Event{
		{ID: 1, UserID: 1, Role: store.RoleUser, Text: "привет", CreatedAt: testDay.Add(time.Hour)},
	}
	if _, ok := Quality(userOnly, testDay, quality.Default()); ok {
		t.Fatalf("bucket with only user events must be absent")
	}
}

func TestPhaseDistribution(t *testing.T) {
	dist := PhaseDistribution(fixtureEvents(), testDay)
	if len(dist) != 2 {
		t.Fatalf("distribution size = %d, want 2: %v", len(dist), dist)
	}
	if dist["engage"] != 1 || dist["focus"] != 1 {
		t.Fatalf("unexpected distribution: %v", dist)
	}
}

func TestAvgLength(t *testing.T) {
	events := []store.Event{
		{ID: 1, Role: store.RoleAssistant, Text: strings.Repeat("а", 100), CreatedAt: testDay.Add(time.Hour)},
		{ID: 2, Role: store.RoleAssistant, Text: strings.Repeat("б", 200), CreatedAt: testDay.Add(time.Hour)},
	}
	avg, ok := AvgLength(events, testDay)
	if !ok {
		t.Fatalf("expected a defined average")
	}
	if avg != 150 {
		t.Errorf("avg_length = %v, want 150", avg)
	}
	if _, ok := AvgLength(nil, testDay); ok {
		t.Errorf("empty day must have no average")
	}
}

func TestConfidenceHistogram(t *testing.T) {
	buckets := ConfidenceHistogram([]float64{0, 0.05, 0.3, 0.35, 0.999, 1})
	if len(buckets) != 10 {
		t.Fatalf("want 10 buckets, got %d", len(buckets))
	}
	if buckets[0].Count != 2 {
		t.Errorf("bucket[0] = %d, want 2", buckets[0].Count)
	}
	if buckets[3].Count != 2 {
		t.Errorf("bucket[3] = %d, want 2", buckets[3].Count)
	}
	// уверенность ровно 1 попадает в последнюю корзину
	if buckets[9].Count != 2 {
		t.Errorf("bucket[9] = %d, want 2", buckets[9].Count)
	}
	if buckets[0].Low != 0 || buckets[9].High != 1 {
		t.Errorf("bucket bounds wrong: %+v", buckets)
	}
}

func TestRetention(t *testing.T) {
	if got := Retention(3, 4); got != 0.75 {
		t.Errorf("retention = %v, want 0.75", got)
	}
	if got := Retention(0, 0); got != 0 {
		t.Errorf("retention with no users = %v, want 0", got)
	}
}
