package dialogue

import (
	"regexp"

	"anima-bot/internal/profile"
)

// axisCue maps a lexical marker to the pole it is evidence for.
type axisCue struct {
	re     *regexp.Regexp
	axis   profile.Axis
	value  float64 // целевой полюс: 1 — E/N/T/J, 0 — I/S/F/P
	weight float64
}

var axisCues = []axisCue{
	{regexp.MustCompile(`(?i)планир|расписан|контрол`), profile.AxisJP, 1, 0.2},
	{regexp.MustCompile(`(?i)спонтан|импровиз`), profile.AxisJP, 0, 0.2},
	{regexp.MustCompile(`(?i)встреч|команда|люд(ей|ям)|общаться`), profile.AxisEI, 1, 0.2},
	{regexp.MustCompile(`(?i)тишин|один|наедине`), profile.AxisEI, 0, 0.2},
	{regexp.MustCompile(`(?i)факты|пошагов|конкретн`), profile.AxisSN, 0, 0.15},
	{regexp.MustCompile(`(?i)смысл|образ|идея`), profile.AxisSN, 1, 0.15},
	{regexp.MustCompile(`(?i)логик|рацио|сравн`), profile.AxisTF, 1, 0.15},
	{regexp.MustCompile(`(?i)чувств|гармони|эмоци`), profile.AxisTF, 0, 0.15},
}

// Classify извлекает из реплики сигналы по осям. Возвращает false, когда
// реплика не несёт профильной информации.
func Classify(text string) (bool, []profile.Signal) {
	var signals []profile.Signal
	for _, cue := range axisCues {
		if cue.re.MatchString(text) {
			signals = append(signals, profile.Signal{Axis: cue.axis, Value: cue.value, Weight: cue.weight})
		}
	}
	return len(signals) > 0, signals
}
