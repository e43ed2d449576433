package telegram

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"anima-bot/internal/dialogue"
	"anima-bot/internal/engine"
	"anima-bot/internal/profile"
	"anima-bot/internal/store"
)

const greetText = "Привет 🌿 Я Анима — твой личный психологический ассистент. " +
	"Я помогаю навести ясность, снизить стресс и наметить шаги вперёд. " +
	"Наши разговоры конфиденциальны, никакого спама — только поддержка 💛\n\n" +
	"Как мне к тебе обращаться?"

var (
	humorAskRe = regexp.MustCompile(`(?i)(^|\P{L})пошути(\P{L}|$)|немного юмора|чуть иронии`)
	digitRe    = regexp.MustCompile(`\d`)
)

func (b *Bot) handleIncomingMessage(ctx context.Context, updateID int64, msg *tgbotapi.Message) {
	uid := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	seen, err := b.engine.Seen(ctx, updateID)
	if err != nil {
		log.Printf("idempotency check failed (update_id=%d): %v", updateID, err)
		return
	}
	if seen {
		log.Printf("duplicate update %d skipped", updateID)
		return
	}

	user := store.User{ID: uid}
	if msg.From != nil {
		user.Username = msg.From.UserName
		user.FirstName = msg.From.FirstName
		user.LastName = msg.From.LastName
		user.Locale = msg.From.LanguageCode
	}

	log.Printf("telegram update %d from %d (@%s), text_len=%d", updateID, uid, user.Username, len(text))

	raw, err := b.engine.AppState(ctx, uid)
	if err != nil {
		log.Printf("failed to load app state for %d: %v", uid, err)
		raw = map[string]any{}
	}
	st := dialogue.StateFromMap(raw)

	lower := strings.ToLower(text)
	switch {
	case lower == "/report":
		if uid != b.adminUserID {
			b.sendMessage(uid, "Отчёты доступны только администратору.")
			return
		}
		b.sendMessage(uid, b.renderSummary(ctx, time.Now()))
		return
	case lower == "/profile":
		b.sendMessage(uid, b.renderProfile(ctx, uid))
		return
	case lower == "/forget":
		if err := b.engine.DeleteUser(ctx, uid); err != nil {
			log.Printf("failed to delete user %d: %v", uid, err)
			b.sendMessage(uid, "Не получилось удалить данные, попробуй позже.")
			return
		}
		b.sendMessage(uid, "Я всё забыла. Если захочешь начать заново — просто напиши /start 🌿")
		return
	case strings.HasPrefix(lower, "/humor"):
		on := strings.Contains(lower, "on") || strings.Contains(lower, "вкл") ||
			strings.Contains(lower, "да") || strings.Contains(lower, "true")
		st.HumorOn = on
		b.saveState(ctx, uid, st)
		if on {
			b.sendMessage(uid, "Юмор включён 😊")
		} else {
			b.sendMessage(uid, "Юмор выключен 👍")
		}
		return
	}

	if lower == "/start" || lower == "start" {
		b.saveState(ctx, uid, dialogue.State{})
		b.sendMessage(uid, greetText)
		b.ingest(ctx, updateID, user, engine.TurnEvent{
			Role: store.RoleAssistant, Text: greetText, MIPhase: dialogue.PhaseEngage, Relevance: true,
		})
		return
	}

	if humorAskRe.MatchString(text) {
		st.HumorOn = true
		b.saveState(ctx, uid, st)
	}

	// Safety first
	if dialogue.Crisis(text) {
		b.sendMessage(uid, dialogue.CrisisReply)
		b.ingest(ctx, updateID, user, engine.TurnEvent{
			Role: store.RoleAssistant, Text: dialogue.CrisisReply,
			MIPhase: dialogue.PhaseSupport, Emotion: dialogue.EmotionTense,
		})
		return
	}
	if dialogue.Stop(text) {
		b.sendMessage(uid, dialogue.StopReply)
		b.ingest(ctx, updateID, user, engine.TurnEvent{
			Role: store.RoleAssistant, Text: dialogue.StopReply,
			MIPhase: dialogue.PhaseEngage, Emotion: dialogue.EmotionNeutral,
		})
		return
	}

	// Знакомство: имя, затем анкета
	if !st.IntroDone {
		if st.Name == "" {
			if text != "" && utf8.RuneCountInString(text) <= 40 && !digitRe.MatchString(text) {
				st.Name = text
				b.saveState(ctx, uid, st)
				b.sendMessage(uid, "Рада знакомству, "+text+"! ✨")
				b.sendMessage(uid, "Как ты сейчас? Выбери слово: спокойно, напряжённо, растерянно — или опиши по-своему.")
				return
			}
			b.sendMessage(uid, "Как мне к тебе обращаться? Коротко — одним словом 🙂")
			return
		}

		st.IntroDone = true
		first := dialogue.KnoStart(&st)
		b.saveState(ctx, uid, st)
		b.sendMessage(uid, "Спасибо! Начнём с короткой анкеты (6 вопросов). Отвечай 1 или 2, можно словами.")
		b.sendMessage(uid, first)
		b.ingest(ctx, updateID, user, engine.TurnEvent{
			Role: store.RoleAssistant, Text: first, MIPhase: dialogue.PhaseEngage, Relevance: true,
		})
		return
	}

	if !st.KnoDone {
		next, baseline := dialogue.KnoStep(&st, text)
		b.saveState(ctx, uid, st)
		if baseline != nil {
			if err := b.engine.SetBaseline(ctx, uid, baseline.EI, baseline.SN, baseline.TF, baseline.JP, baseline.Confidence); err != nil {
				log.Printf("failed to store baseline for %d: %v", uid, err)
			}
			summary := b.knoSummary(ctx, uid)
			b.sendMessage(uid, summary)
			b.ingest(ctx, updateID, user, engine.TurnEvent{
				Role: store.RoleAssistant, Text: summary, MIPhase: dialogue.PhaseEngage, Relevance: true,
			})
			return
		}
		out := next + "\n\nОтветь 1 или 2, можно словами."
		b.sendMessage(uid, out)
		b.ingest(ctx, updateID, user, engine.TurnEvent{
			Role: store.RoleAssistant, Text: next, MIPhase: dialogue.PhaseEngage, Relevance: true,
		})
		return
	}

	b.handleFreeDialogue(ctx, updateID, user, text, st)
}

func (b *Bot) handleFreeDialogue(ctx context.Context, updateID int64, user store.User, text string, st dialogue.State) {
	uid := user.ID

	emo := dialogue.DetectEmotion(text)
	rel, signals := dialogue.Classify(text)
	topics := dialogue.DetectTopics(text)
	var topic string
	if len(topics) > 0 {
		topic = topics[0]
	}

	lastPhase, err := b.engine.LastPhase(ctx, uid)
	if err != nil {
		log.Printf("failed to load last phase for %d: %v", uid, err)
	}
	if lastPhase == "" {
		lastPhase = dialogue.PhaseEngage
	}
	phase := dialogue.ChoosePhase(lastPhase, emo, text)

	prof, err := b.engine.Profile(ctx, uid)
	if err != nil {
		if !errors.Is(err, engine.ErrNotFound) {
			log.Printf("failed to load profile for %d: %v", uid, err)
		}
		prof = profile.NewDefault(uid)
	}

	allowHumor := st.HumorOn && (emo == dialogue.EmotionNeutral || emo == dialogue.EmotionCalm)
	draft := dialogue.Compose(prof, text, phase, allowHumor)
	if !dialogue.Acceptable(draft, text, b.engine.Evaluator()) {
		draft = dialogue.Fallback(text)
	}

	b.sendMessage(uid, draft)

	b.ingest(ctx, updateID, user,
		engine.TurnEvent{
			Role: store.RoleUser, Text: text,
			Emotion: emo, MIPhase: phase, Topic: topic, Relevance: rel, Axes: signals,
		},
		engine.TurnEvent{
			Role: store.RoleAssistant, Text: draft,
			Emotion: emo, MIPhase: phase, Relevance: rel,
		},
	)

	if err := b.engine.AddDailyTopics(ctx, uid, time.Now(), topics); err != nil {
		log.Printf("failed to record daily topics for %d: %v", uid, err)
	}
}

func (b *Bot) ingest(ctx context.Context, updateID int64, user store.User, events ...engine.TurnEvent) {
	if _, err := b.engine.IngestBatch(ctx, updateID, user, events); err != nil {
		if errors.Is(err, engine.ErrDuplicateUpdate) {
			log.Printf("update %d already applied", updateID)
			return
		}
		log.Printf("failed to ingest update %d: %v", updateID, err)
	}
}

func (b *Bot) saveState(ctx context.Context, uid int64, st dialogue.State) {
	if err := b.engine.SetAppState(ctx, uid, st.ToMap()); err != nil {
		log.Printf("failed to save app state for %d: %v", uid, err)
	}
}
