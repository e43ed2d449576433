package metrics

import (
	"time"
	"unicode/utf8"

	"anima-bot/internal/quality"
	"anima-bot/internal/store"
)

// DailyQuality содержит качество ответов ассистента за день.
type DailyQuality struct {
	Day          string  `json:"day"`
	AvgQuality   float64 `json:"avg_quality"`
	SafetyRate   float64 `json:"safety_rate"`
	AnswersTotal int     `json:"answers_total"`
}

// Quality folds the assistant events of one day into averaged rubric scores.
// The second return value is false when the bucket has no assistant events:
// an empty bucket is absent, never zero.
func Quality(events []store.Event, day time.Time, eval *quality.Evaluator) (DailyQuality, bool) {
	start, end := store.DayBounds(day)
	var sumScore, safe float64
	total := 0
	for _, ev := range events {
		if !inDay(ev, start, end) || ev.Role != store.RoleAssistant {
			continue
		}
		flags := eval.Evaluate(ev.Text)
		sumScore += flags.Score()
		if !flags.HasBanned {
			safe++
		}
		total++
	}
	if total == 0 {
		return DailyQuality{}, false
	}
	return DailyQuality{
		Day:          start.Format("2006-01-02"),
		AvgQuality:   sumScore / float64(total),
		SafetyRate:   safe / float64(total),
		AnswersTotal: total,
	}, true
}

// PhaseDistribution counts assistant events per MI phase for one day,
// across all users. Events without a phase label are counted under "".
func PhaseDistribution(events []store.Event, day time.Time) map[string]int {
	start, end := store.DayBounds(day)
	dist := make(map[string]int)
	for _, ev := range events {
		if !inDay(ev, start, end) || ev.Role != store.RoleAssistant {
			continue
		}
		dist[ev.MIPhase]++
	}
	return dist
}

// AvgLength is the mean rune length of assistant replies for one day.
// False when no assistant events fall into the bucket.
func AvgLength(events []store.Event, day time.Time) (float64, bool) {
	start, end := store.DayBounds(day)
	var sum float64
	total := 0
	for _, ev := range events {
		if !inDay(ev, start, end) || ev.Role != store.RoleAssistant {
			continue
		}
		sum += float64(utf8.RuneCountInString(ev.Text))
		total++
	}
	if total == 0 {
		return 0, false
	}
	return sum / float64(total), true
}

// Bucket — одна корзина гистограммы уверенности.
type Bucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// ConfidenceHistogram distributes the current confidence snapshot over 10
// equal-width buckets on [0,1]. Confidence exactly 1 lands in the last bucket.
func ConfidenceHistogram(confidences []float64) []Bucket {
	buckets := make([]Bucket, 10)
	for i := range buckets {
		buckets[i].Low = float64(i) / 10
		buckets[i].High = float64(i+1) / 10
	}
	for _, c := range confidences {
		if c < 0 || c > 1 {
			continue
		}
		idx := int(c * 10)
		if idx > 9 {
			idx = 9
		}
		buckets[idx].Count++
	}
	return buckets
}

// Retention is the share of ever-seen users active in the trailing window.
// Zero known users yields 0.
func Retention(active, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(active) / float64(total)
}

func inDay(ev store.Event, start, end time.Time) bool {
	t := ev.CreatedAt
	return !t.Before(start) && t.Before(end)
}
