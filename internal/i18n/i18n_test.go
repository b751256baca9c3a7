package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLang(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "EncourageGreat"); got != "Great job!" {
		t.Errorf("T(EncourageGreat) = %q, want 'Great job!'", got)
	}
	if got := T(ctx, "AnswerPrompt"); got != "Please type your answer below." {
		t.Errorf("T(AnswerPrompt) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "EncourageGreat"); got != "Отличная работа!" {
		t.Errorf("T(EncourageGreat) = %q, want 'Отличная работа!'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuizLength", 1); got != "This quiz has 1 question." {
		t.Errorf("Tp(QuizLength, 1) = %q", got)
	}
	if got := Tp(ctx, "QuizLength", 5); got != "This quiz has 5 questions." {
		t.Errorf("Tp(QuizLength, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionHeading", map[string]any{"ID": 3})
	if got != "Question 3" {
		t.Errorf("Td(QuestionHeading, ID=3) = %q, want 'Question 3'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	en := initLang(t, "en")
	ru := WithLang(context.Background(), "ru")
	for _, id := range []string{"Welcome", "Goodbye", "QuizCompleted", "QuizFinished", "GateNotMet",
		"ExplorationReminder", "KeepGoing", "RetryHint", "NextQuestionIntro", "PromptForAnswer",
		"NoQuizAvailable", "GradingUnavailable", "ContextHeading", "NoContext"} {
		if T(en, id) == id {
			t.Errorf("en: missing %s", id)
		}
		if T(ru, id) == id {
			t.Errorf("ru: missing %s", id)
		}
	}
}

func TestMiddlewareLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "EncourageWell")
	}))

	tests := []struct {
		name   string
		target string
		accept string
		want   string
	}{
		{"default", "/", "", "Well done!"},
		{"query param", "/?lang=ru", "", "Хорошо!"},
		{"accept header", "/", "ru-RU,ru;q=0.9", "Хорошо!"},
		{"unsupported falls back", "/", "de-DE", "Well done!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
