package present

import (
	"context"
	"strings"
	"testing"

	"github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/model"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"what is a   firewall", "What is a firewall?"},
		{"explain the the OSI model", "Explain the OSI model."},
		{"Describe TCP.", "Describe TCP."},
		{"  list three ports:  ", "List three ports:"},
		{"is UDP reliable", "Is UDP reliable?"},
		{"island nations", "Island nations."},
		{"", ""},
		{"ёлка", "Ёлка."},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeQuestion(tt.in); got != tt.want {
				t.Errorf("NormalizeQuestion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatContextHeaders(t *testing.T) {
	got := FormatContext("Write a function.\nSample Output: 42")
	want := "Write a function.\n\n**Sample Output:**\n42"
	if got != want {
		t.Errorf("FormatContext() = %q, want %q", got, want)
	}
}

func TestFormatContextHeaderMidLineUntouched(t *testing.T) {
	got := FormatContext("Follow the Instructions: below")
	if got != "Follow the Instructions: below" {
		t.Errorf("FormatContext() = %q", got)
	}
}

func TestFormatContextCodeFences(t *testing.T) {
	got := FormatContext("Run this:```python\nprint(1)```then done")
	want := "Run this:\n```python\nprint(1)\n```\nthen done"
	if got != want {
		t.Errorf("FormatContext() = %q, want %q", got, want)
	}
}

func TestFormatContextLeavesCodeAlone(t *testing.T) {
	in := "```\nInstructions: not a header\n\n\n\nx = 1\n```"
	got := FormatContext(in)
	if !strings.Contains(got, "Instructions: not a header\n\n\n\nx = 1") {
		t.Errorf("code block was modified: %q", got)
	}
}

func TestQuestion(t *testing.T) {
	if err := i18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	ctx := i18n.WithLang(context.Background(), "en")
	q := model.QuizQuestion{ID: 2, Question: "what is a port", Context: "Think about TCP."}

	got := Question(ctx, q)
	want := "### Question 2\n\n**What is a port?**\n\n**Context & Instructions:**\n\nThink about TCP.\n\nPlease type your answer below."
	if got != want {
		t.Errorf("Question() =\n%s\nwant\n%s", got, want)
	}
	if q.Question != "what is a port" {
		t.Error("Question() must not mutate its argument")
	}
	if Question(ctx, q) != got {
		t.Error("Question() must be stable")
	}
}

func TestQuestionNoContext(t *testing.T) {
	ctx := i18n.WithLang(context.Background(), "en")
	got := Question(ctx, model.QuizQuestion{ID: 1, Question: "Define latency"})
	if !strings.Contains(got, "_No additional context provided._") {
		t.Errorf("missing no-context line: %q", got)
	}
}
