package dialogue

import "regexp"

// topicCue maps lexical markers to a day-topic label.
type topicCue struct {
	re    *regexp.Regexp
	label string
}

var topicCues = []topicCue{
	{regexp.MustCompile(`(?i)работ|карьер|началь|коллег|проект`), "работа"},
	{regexp.MustCompile(`(?i)отношени|партн|любов|расста|ссор`), "отношения"},
	{regexp.MustCompile(`(?i)сем|родител|дет(и|ей|ям)|брат|сестр`), "семья"},
	{regexp.MustCompile(`(?i)сон|сплю|бессонниц|выспа`), "сон"},
	{regexp.MustCompile(`(?i)здоров|самочувств|болит|усталост`), "здоровье"},
	{regexp.MustCompile(`(?i)деньг|финанс|долг|зарплат`), "деньги"},
	{regexp.MustCompile(`(?i)уч[её]б|экзамен|сесси|курс`), "учёба"},
	{regexp.MustCompile(`(?i)тревог|стресс|выгора|напряж`), "стресс"},
}

// DetectTopics выделяет из реплики темы дня. Порядок соответствует таблице
// маркеров, без повторов.
func DetectTopics(text string) []string {
	var topics []string
	for _, cue := range topicCues {
		if cue.re.MatchString(text) {
			topics = append(topics, cue.label)
		}
	}
	return topics
}
