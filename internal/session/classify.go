package session

import (
	"strings"
	"unicode"
)

// TurnKind is the classified intent of one student utterance.
type TurnKind int

const (
	KindUnrecognized TurnKind = iota
	KindTermination
	KindNavigation
	KindExploration
	KindAnswer
)

// String returns the label used in replies, logs and metrics.
func (k TurnKind) String() string {
	switch k {
	case KindTermination:
		return "termination"
	case KindNavigation:
		return "navigation"
	case KindExploration:
		return "exploration"
	case KindAnswer:
		return "answer"
	default:
		return "unrecognized"
	}
}

var terminationWords = map[string]bool{
	"quit": true, "exit": true, "stop": true, "finish": true,
}

var navigationWords = map[string]bool{
	"next": true, "continue": true, "yes": true, "ready": true, "okay": true, "yep": true,
}

var questionOpeners = map[string]bool{
	"how": true, "why": true, "what": true, "can": true, "does": true, "do": true,
	"is": true, "are": true, "could": true, "would": true, "should": true,
}

// Classify decides what a student utterance is. Checks run in priority order:
// termination, navigation, exploration, answer. Blank input is unrecognized.
func Classify(raw string) TurnKind {
	text := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case text == "":
		return KindUnrecognized
	case terminationWords[text]:
		return KindTermination
	case navigationWords[text]:
		return KindNavigation
	case strings.HasSuffix(text, "?"), questionOpeners[leadingWord(text)]:
		return KindExploration
	default:
		return KindAnswer
	}
}

// leadingWord returns the run of letters that opens text.
func leadingWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return text
	}
	return text[:end]
}
