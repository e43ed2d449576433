package dialogue

import "regexp"

// Запретные темы и кризисные маркеры. Проверяются до любой другой обработки.
var (
	stopRe   = regexp.MustCompile(`(?i)(политик|религ|насили|медицинск|вакцин|диагноз|лекарств|суицид)`)
	crisisRe = regexp.MustCompile(`(?i)(не хочу жить|самоповрежд|суицид|покончи|боль невыносима)`)
)

// Crisis reports whether the text carries crisis markers that require the
// support reply instead of normal processing.
func Crisis(text string) bool { return crisisRe.MatchString(text) }

// Stop reports whether the text touches a banned topic.
func Stop(text string) bool { return stopRe.MatchString(text) }

const (
	// CrisisReply is sent verbatim when crisis markers are detected.
	CrisisReply = "Я рядом и слышу твою боль. Если нужна поддержка прямо сейчас — " +
		"обратись к близким или в службу помощи. Что сейчас было бы самым бережным для тебя?"

	// StopReply redirects away from banned topics.
	StopReply = "Давай оставим чувствительные темы за рамками. О чём тебе важнее поговорить сейчас?"
)
