package dialogue

import (
	"math/rand"
	"regexp"
	"unicode/utf8"

	"anima-bot/internal/profile"
	"anima-bot/internal/quality"
)

// Style describes how replies should be shaped for a profile.
type Style struct {
	Tone   string // активный / спокойный
	Detail string // смыслы / шаги
	Mind   string // анализ / чувства
	Plan   string // план / эксперимент
}

// StyleFor derives the communication style from the axis scores.
func StyleFor(p profile.Profile) Style {
	st := Style{Tone: "спокойный", Detail: "шаги", Mind: "чувства", Plan: "эксперимент"}
	if p.EI >= 0.5 {
		st.Tone = "активный"
	}
	if p.SN >= 0.5 {
		st.Detail = "смыслы"
	}
	if p.TF >= 0.5 {
		st.Mind = "анализ"
	}
	if p.JP >= 0.5 {
		st.Plan = "план"
	}
	return st
}

var (
	reflectTense = []string{
		"Слышу напряжение. ",
		"Понимаю, что сейчас нелегко. ",
		"Кажется, внутри штормит. ",
	}
	reflectCalm = []string{
		"Рада видеть спокойствие. ",
		"Класс, звучит уверенно. ",
		"Супер — есть опора. ",
	}
	reflectUncertain = []string{
		"Вижу, хочется ясности. ",
		"Можно растеряться — я рядом. ",
	}
	reflectNeutral = []string{
		"Я рядом и слышу тебя. ",
		"Слышу тебя. ",
		"Понимаю тебя. ",
	}
	humorSeeds = []string{
		"Могу добавить щепотку юмора — если не против 😊",
		"Иногда помогает лёгкая ирония — скажи, если ок 😉",
		"Если уместно, могу пошутить — только по-доброму 😌",
	}
)

// ReflectEmotion opens the reply by mirroring the user's emotional tone.
func ReflectEmotion(text string) string {
	switch DetectEmotion(text) {
	case EmotionTense:
		return pick(reflectTense)
	case EmotionCalm:
		return pick(reflectCalm)
	case EmotionUncertain:
		return pick(reflectUncertain)
	default:
		return pick(reflectNeutral)
	}
}

// OpenQuestion closes the reply with a phase-appropriate open question.
func OpenQuestion(phase string, style Style) string {
	switch phase {
	case PhaseEngage:
		return pick([]string{
			"Что сейчас для тебя самое важное?",
			"С чего начнём — что тревожит больше всего?",
		})
	case PhaseFocus:
		return pick([]string{
			"На чём тебе хочется остановиться в первую очередь?",
			"Если сузить фокус — где точка приложения усилий?",
		})
	case PhaseEvoke:
		if style.Detail == "смыслы" {
			return "Какой смысл ты видишь здесь?"
		}
		return "Какие конкретные шаги ты видишь здесь?"
	case PhasePlan:
		if style.Plan == "план" {
			return "Какой маленький шаг запланируем на сегодня?"
		}
		return "Какой лёгкий эксперимент попробуешь сначала?"
	}
	return "Расскажи чуть больше?"
}

// Compose builds the personalized draft reply.
func Compose(p profile.Profile, text, phase string, allowHumor bool) string {
	style := StyleFor(p)
	head := ReflectEmotion(text)
	tail := OpenQuestion(phase, style)
	if allowHumor && (phase == PhaseEngage || phase == PhaseFocus) && rand.Float64() < 0.25 {
		return head + tail + " " + pick(humorSeeds)
	}
	return head + tail
}

var (
	fallbackConfidence = regexp.MustCompile(`(?i)уверен`)
	fallbackFear       = regexp.MustCompile(`(?i)страх|боюсь|тревог`)
	fallbackAnger      = regexp.MustCompile(`(?i)злост|раздраж|злюсь`)
	fallbackSadness    = regexp.MustCompile(`(?i)груст|печаль`)
)

// Fallback replaces drafts rejected by the quality gate.
func Fallback(userText string) string {
	switch {
	case fallbackConfidence.MatchString(userText):
		return "Хочешь развить уверенность? Где она особенно нужна сейчас — в делах, отношениях или в себе?"
	case fallbackFear.MatchString(userText):
		return "Понимаю, страх бывает сильным. Что его чаще всего запускает — неопределённость, прошлый опыт или мнение других?"
	case fallbackAnger.MatchString(userText):
		return "Злость — это сигнал о границах. Хочешь вместе понять, где именно они сейчас затронуты?"
	case fallbackSadness.MatchString(userText):
		return "Грусть — это про ценное, что сейчас не рядом. Что поддержало бы тебя прямо сегодня?"
	}
	return "Слышу тебя 🌿 Расскажи чуть больше — что тебе важно сейчас почувствовать или изменить?"
}

// Acceptable is the soft quality gate over a draft reply: banned topics are
// a hard stop, short user messages allow short answers, overlong drafts are
// rejected.
func Acceptable(draft, userText string, eval *quality.Evaluator) bool {
	if eval.Banned(draft) {
		return false
	}
	if utf8.RuneCountInString(userText) < 35 {
		return true
	}
	return utf8.RuneCountInString(draft) <= 600
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}
