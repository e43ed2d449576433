package dialogue

import "strings"

// КНО — короткая анкета знакомства из шести вопросов, по две реплики на ось.
type knoQuestion struct {
	key  string
	text string
}

var knoQuestions = []knoQuestion{
	{"ei_q1", "Когда ты устаёшь — что помогает быстрее восстановиться: пообщаться с людьми 🌱 или побыть наедине ☁️?"},
	{"sn_q1", "Что тебе ближе: действовать по конкретным шагам и фактам 🎯 или ориентироваться на идею и смысл ✨?"},
	{"tf_q1", "Как ты чаще принимаешь решения: через логику и аргументы 🧠 или через чувства и внутренние ценности 💛?"},
	{"jp_q1", "Когда тебе спокойнее: когда всё чётко спланировано 📋 или когда есть свобода и импровизация 🎲?"},
	{"jp_q2", "Когда много задач: составить список заранее или пробовать и смотреть по ситуации?"},
	{"ei_q2", "Когда нужно разобраться: поговорить с кем-то или записать мысли для себя?"},
}

// Первая буква — полюс варианта 1, вторая — варианта 2.
var knoPoles = map[string][2]string{
	"ei_q1": {"E", "I"},
	"sn_q1": {"S", "N"},
	"tf_q1": {"T", "F"},
	"jp_q1": {"J", "P"},
	"jp_q2": {"J", "P"},
	"ei_q2": {"E", "I"},
}

// Baseline is the questionnaire-derived starting profile.
type Baseline struct {
	EI, SN, TF, JP float64
	Confidence     float64
}

// KnoStart resets the questionnaire and returns the first question.
func KnoStart(st *State) string {
	st.KnoStarted = true
	st.KnoIdx = 0
	st.KnoDone = false
	st.KnoAnswers = make(map[string]int)
	return knoQuestions[0].text
}

// KnoStep consumes one answer. It returns the next question, or a Baseline
// when the questionnaire is complete (next == "" then).
func KnoStep(st *State, text string) (next string, result *Baseline) {
	if !st.KnoStarted {
		KnoStart(st)
	}
	if st.KnoAnswers == nil {
		st.KnoAnswers = make(map[string]int)
	}
	if st.KnoIdx >= len(knoQuestions) {
		st.KnoDone = true
		return "", knoBaseline(st.KnoAnswers)
	}

	q := knoQuestions[st.KnoIdx]
	st.KnoAnswers[q.key] = pickByKeywords(q.key, text)
	st.KnoIdx++

	if st.KnoIdx >= len(knoQuestions) {
		st.KnoDone = true
		return "", knoBaseline(st.KnoAnswers)
	}
	return knoQuestions[st.KnoIdx].text, nil
}

// pickByKeywords interprets a free-form answer as variant 1 or 2.
func pickByKeywords(key, text string) int {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "1", "первый", "первое", "первая":
		return 1
	case "2", "второй", "второе", "вторая":
		return 2
	}
	switch {
	case strings.HasPrefix(key, "ei_"):
		if containsAnyOf(t, "наедин", "один", "тишин") {
			return 2
		}
		if containsAnyOf(t, "люд", "общат", "встреч") {
			return 1
		}
	case strings.HasPrefix(key, "sn_"):
		if containsAnyOf(t, "факт", "конкрет", "шаг") {
			return 1
		}
		if containsAnyOf(t, "смысл", "иде", "образ") {
			return 2
		}
	case strings.HasPrefix(key, "tf_"):
		if containsAnyOf(t, "логик", "рацион", "аргумент") {
			return 1
		}
		if containsAnyOf(t, "чувств", "эмоци", "ценност") {
			return 2
		}
	case strings.HasPrefix(key, "jp_"):
		if containsAnyOf(t, "план", "распис", "контрол") {
			return 1
		}
		if containsAnyOf(t, "свобод", "импров", "спонтан") {
			return 2
		}
	}
	return 1
}

// knoBaseline folds answers into pole fractions: ei holds the E share,
// sn the N share, tf the T share, jp the J share.
func knoBaseline(answers map[string]int) *Baseline {
	counts := map[string]int{}
	for key, v := range answers {
		poles, ok := knoPoles[key]
		if !ok {
			continue
		}
		if v == 1 {
			counts[poles[0]]++
		} else {
			counts[poles[1]]++
		}
	}
	return &Baseline{
		EI:         poleShare(counts["E"], counts["I"]),
		SN:         poleShare(counts["N"], counts["S"]),
		TF:         poleShare(counts["T"], counts["F"]),
		JP:         poleShare(counts["J"], counts["P"]),
		Confidence: 0.4,
	}
}

func poleShare(hi, lo int) float64 {
	sum := hi + lo
	if sum == 0 {
		return 0.5
	}
	return float64(hi) / float64(sum)
}

func containsAnyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
