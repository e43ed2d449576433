package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"anima-bot/internal/engine"
)

func (b *Bot) knoSummary(ctx context.Context, uid int64) string {
	prof, err := b.engine.Profile(ctx, uid)
	if err != nil {
		log.Printf("failed to load profile for %d after questionnaire: %v", uid, err)
		return "Спасибо, я лучше понимаю, как с тобой говорить 💛\n\n" +
			"Расскажи коротко — с чем хочешь сегодня поработать или о чём поговорить?"
	}
	guess := b.engine.Updater().MBTI(&prof)
	return fmt.Sprintf(
		"Спасибо, я лучше понимаю, как с тобой говорить 💛\n"+
			"Пока это черновой профиль: %s. Уверенность %d%% и будет расти по мере общения.\n\n"+
			"Расскажи коротко — с чем хочешь сегодня поработать или о чём поговорить?",
		guess, int(prof.Confidence*100),
	)
}

// DailyReport renders the current day's aggregates and sends them to the
// admin chat. Wired into the cron scheduler.
func (b *Bot) DailyReport(ctx context.Context) error {
	b.SendToAdmin(b.renderSummary(ctx, time.Now()))
	return nil
}

// renderSummary собирает дневной отчёт для администратора.
func (b *Bot) renderSummary(ctx context.Context, day time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Отчёт Анимы за %s:\n\n", day.UTC().Format("2006-01-02"))

	if dq, ok, err := b.engine.DailyQuality(ctx, 0, day); err != nil {
		log.Printf("failed to compute daily quality: %v", err)
	} else if ok {
		fmt.Fprintf(&sb, "Качество ответов:\n- Среднее качество: %.2f\n- Доля безопасных: %.2f\n- Всего ответов: %d\n\n",
			dq.AvgQuality, dq.SafetyRate, dq.AnswersTotal)
	} else {
		sb.WriteString("Качество ответов: за день нет ответов ассистента.\n\n")
	}

	if avg, ok, err := b.engine.AvgLength(ctx, day); err != nil {
		log.Printf("failed to compute avg length: %v", err)
	} else if ok {
		fmt.Fprintf(&sb, "Средняя длина ответа: %.0f символов\n\n", avg)
	}

	if dist, err := b.engine.PhaseDistribution(ctx, day); err != nil {
		log.Printf("failed to compute phase distribution: %v", err)
	} else if len(dist) > 0 {
		sb.WriteString("Распределение фаз:\n")
		phases := make([]string, 0, len(dist))
		for phase := range dist {
			phases = append(phases, phase)
		}
		sort.Strings(phases)
		for _, phase := range phases {
			name := phase
			if name == "" {
				name = "(без фазы)"
			}
			fmt.Fprintf(&sb, "- %s: %d\n", name, dist[phase])
		}
		sb.WriteString("\n")
	}

	if buckets, err := b.engine.ConfidenceHistogram(ctx); err != nil {
		log.Printf("failed to compute confidence histogram: %v", err)
	} else {
		sb.WriteString("Уверенность профилей:\n")
		for _, bucket := range buckets {
			if bucket.Count == 0 {
				continue
			}
			fmt.Fprintf(&sb, "- [%.1f..%.1f): %d\n", bucket.Low, bucket.High, bucket.Count)
		}
		sb.WriteString("\n")
	}

	if ret, err := b.engine.Retention7d(ctx, time.Now()); err != nil {
		log.Printf("failed to compute retention: %v", err)
	} else {
		fmt.Fprintf(&sb, "Удержание за 7 дней: %.0f%%\n", ret*100)
	}

	return sb.String()
}

// renderProfile показывает пользователю его текущий профиль.
func (b *Bot) renderProfile(ctx context.Context, uid int64) string {
	prof, err := b.engine.Profile(ctx, uid)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return "Профиль ещё не собран — продолжим общаться, и он появится 🌱"
		}
		log.Printf("failed to load profile for %d: %v", uid, err)
		return "Не получилось загрузить профиль, попробуй позже."
	}

	var sb strings.Builder
	if prof.MBTIType != "" {
		fmt.Fprintf(&sb, "Твой профиль: %s\n", prof.MBTIType)
	} else {
		sb.WriteString("Профиль пока черновой — тип появится, когда уверенность подрастёт.\n")
	}
	fmt.Fprintf(&sb, "Уверенность: %d%%\n", int(prof.Confidence*100))
	fmt.Fprintf(&sb, "Оси: E %.2f · N %.2f · T %.2f · J %.2f\n", prof.EI, prof.SN, prof.TF, prof.JP)
	if prof.State != "" {
		fmt.Fprintf(&sb, "Состояние: %s\n", prof.State)
	}

	if topics, ok, err := b.engine.DailyTopics(ctx, uid, time.Now()); err != nil {
		log.Printf("failed to load daily topics for %d: %v", uid, err)
	} else if ok && len(topics) > 0 {
		fmt.Fprintf(&sb, "Темы дня: %s\n", strings.Join(topics, ", "))
	}

	return sb.String()
}
