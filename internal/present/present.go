// Package present renders quiz questions as markdown for the chat surface.
package present

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/model"
)

const fence = "```"

// sectionHeaders are put on their own bold line when they open a line of context.
var sectionHeaders = []string{
	"Sample Output:",
	"Expected Output:",
	"Example Output:",
	"Instructions:",
	"Requirements:",
	"Useful Functions:",
	"Data Structures:",
}

var (
	headerPatterns = compileHeaders(sectionHeaders)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
)

var interrogatives = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"which": true, "who": true, "whom": true, "whose": true,
	"can": true, "could": true, "would": true, "should": true, "will": true,
	"does": true, "do": true, "did": true, "is": true, "are": true,
	"was": true, "were": true,
}

func compileHeaders(headers []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(headers))
	for i, h := range headers {
		out[i] = regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(h) + `[ \t]*`)
	}
	return out
}

// Question renders q as a markdown block: heading, normalized question text,
// context and an answer prompt. Labels follow the localizer in ctx.
func Question(ctx context.Context, q model.QuizQuestion) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(i18n.Td(ctx, "QuestionHeading", map[string]any{"ID": q.ID}))
	b.WriteString("\n\n**")
	b.WriteString(NormalizeQuestion(q.Question))
	b.WriteString("**\n\n**")
	b.WriteString(i18n.T(ctx, "ContextHeading"))
	b.WriteString("**\n\n")
	if c := FormatContext(q.Context); c != "" {
		b.WriteString(c)
	} else {
		b.WriteString("_" + i18n.T(ctx, "NoContext") + "_")
	}
	b.WriteString("\n\n")
	b.WriteString(i18n.T(ctx, "AnswerPrompt"))
	return b.String()
}

// NormalizeQuestion tidies question text for display. It collapses whitespace,
// drops adjacent repeated words, capitalizes the first letter and makes sure
// the text ends with punctuation.
func NormalizeQuestion(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	kept := words[:1]
	for _, w := range words[1:] {
		if w != kept[len(kept)-1] {
			kept = append(kept, w)
		}
	}
	s := strings.Join(kept, " ")

	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]

	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '?', '!', ':':
		return s
	}
	if interrogatives[firstWord(s)] {
		return s + "?"
	}
	return s + "."
}

// firstWord returns the lower-cased leading run of letters.
func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(s)
	}
	return strings.ToLower(s[:end])
}

// FormatContext lays out question context for markdown. Known section headers
// get their own bold line and code fences get their own lines. Text inside
// code blocks is left untouched.
func FormatContext(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	parts := strings.Split(text, fence)
	var b strings.Builder
	for i, part := range parts {
		if i%2 == 0 {
			b.WriteString(formatProse(part))
			continue
		}
		if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(fence)
		b.WriteString(part)
		if i == len(parts)-1 {
			// unterminated block
			break
		}
		if !strings.HasSuffix(part, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(fence)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func formatProse(s string) string {
	for i, re := range headerPatterns {
		s = re.ReplaceAllLiteralString(s, "\n**"+sectionHeaders[i]+"**\n")
	}
	s = trailingSpace.ReplaceAllString(s, "\n")
	return blankRuns.ReplaceAllString(s, "\n\n")
}
