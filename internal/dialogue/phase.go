package dialogue

import "regexp"

// MI phases of the conversation.
const (
	PhaseEngage  = "engage"
	PhaseFocus   = "focus"
	PhaseEvoke   = "evoke"
	PhasePlan    = "plan"
	PhaseSupport = "support"
)

// ASCII-шный \b не работает с кириллицей, поэтому границы слов изображаем
// через \P{L}.
var (
	focusRe = regexp.MustCompile(`(?i)(^|\P{L})фокус(\P{L}|$)|главн|сосредоточ`)
	evokeRe = regexp.MustCompile(`(?i)(^|\P{L})(почему|зачем)(\P{L}|$)|думаю|хочу понять|кажется`)
	planRe  = regexp.MustCompile(`(?i)готов|сделаю|попробую|начну|планир`)
)

// ChoosePhase — конечный автомат фаз: напряжение и неуверенность возвращают
// к вовлечению, ключевые слова двигают вперёд, иначе фаза удерживается.
func ChoosePhase(lastPhase, emotion, text string) string {
	if emotion == EmotionTense || emotion == EmotionUncertain {
		return PhaseEngage
	}
	switch {
	case focusRe.MatchString(text):
		return PhaseFocus
	case evokeRe.MatchString(text):
		return PhaseEvoke
	case planRe.MatchString(text):
		return PhasePlan
	}
	if lastPhase == PhaseEngage || lastPhase == "" {
		return PhaseFocus
	}
	return lastPhase
}
