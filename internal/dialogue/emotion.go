package dialogue

import "regexp"

// Emotion labels attached to events.
const (
	EmotionTense     = "tense"
	EmotionCalm      = "calm"
	EmotionUncertain = "uncertain"
	EmotionNeutral   = "neutral"
)

var (
	tenseRe     = regexp.MustCompile(`(?i)(устал|напряж|тревог|страш|злюсь|злость|раздраж|плохо|груст)`)
	calmRe      = regexp.MustCompile(`(?i)(спокойн|рад|легко|класс|хорошо|супер|ок)`)
	uncertainRe = regexp.MustCompile(`(?i)(не знаю|путаюсь|сомнева|непонятн)`)
)

// DetectEmotion классифицирует реплику пользователя по простым маркерам.
func DetectEmotion(text string) string {
	switch {
	case tenseRe.MatchString(text):
		return EmotionTense
	case calmRe.MatchString(text):
		return EmotionCalm
	case uncertainRe.MatchString(text):
		return EmotionUncertain
	default:
		return EmotionNeutral
	}
}
