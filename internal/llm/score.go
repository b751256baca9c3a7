package llm

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/quiztutor/internal/model"
)

// scoreLine matches a trailing "SCORE: <value>" line, tolerating markdown
// emphasis around it and either case.
var scoreLine = regexp.MustCompile(`(?i)^[\s*_]*score[\s*_]*[:=][\s*_]*([^\s*_]+)[\s*_]*$`)

// ParseScore extracts the score from an oracle reply. The last SCORE line
// wins and all SCORE lines are removed from the feedback. "SCORE: X" means
// the prior score. Scores are clamped to [0, 1]. When no SCORE line is
// present, or the last one cannot be parsed, the score is 0 and the whole
// reply is the feedback.
func ParseScore(reply string, prior float64) (score float64, feedback string) {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	raw, found := "", false
	for _, line := range lines {
		if m := scoreLine.FindStringSubmatch(line); m != nil {
			raw, found = m[1], true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return 0, strings.TrimSpace(reply)
	}

	if strings.EqualFold(raw, "x") {
		score = prior
	} else {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "."), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, strings.TrimSpace(reply)
		}
		score = v
	}
	return model.ClampScore(score), strings.TrimSpace(strings.Join(kept, "\n"))
}
