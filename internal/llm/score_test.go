package llm

import "testing"

func TestParseScore(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		prior        float64
		wantScore    float64
		wantFeedback string
	}{
		{"plain", "Correct: filters traffic.\nSCORE: 0.9", 0, 0.9, "Correct: filters traffic."},
		{"lower case", "Good.\nscore: 0.5", 0, 0.5, "Good."},
		{"markdown", "Nice.\n**SCORE:** 1.0", 0, 1.0, "Nice."},
		{"bold value", "Nice.\n**SCORE: 0.7**", 0, 0.7, "Nice."},
		{"trailing period", "Ok.\nSCORE: 0.6.", 0, 0.6, "Ok."},
		{"last line wins", "SCORE: 0.2\nActually better.\nSCORE: 0.8", 0, 0.8, "Actually better."},
		{"placeholder", "A firewall filters packets.\nSCORE: X", 0.4, 0.4, "A firewall filters packets."},
		{"placeholder lower", "Explained.\nSCORE: x", 0.7, 0.7, "Explained."},
		{"clamped high", "Wow.\nSCORE: 7", 0, 1, "Wow."},
		{"clamped low", "Hmm.\nSCORE: -2", 0, 0, "Hmm."},
		{"absent", "Correct: well reasoned.", 0.9, 0, "Correct: well reasoned."},
		{"unparseable", "Good.\nSCORE: high", 0, 0, "Good.\nSCORE: high"},
		{"nan", "Odd.\nSCORE: NaN", 0, 0, "Odd.\nSCORE: NaN"},
		{"crlf", "Fine.\r\nSCORE: 0.85\r\n", 0, 0.85, "Fine."},
		{"prose mention is not a score line", "Your score: improves with detail.\nSCORE: 0.3", 0, 0.3, "Your score: improves with detail."},
		{"only score", "SCORE: 1", 0, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, feedback := ParseScore(tt.reply, tt.prior)
			if score != tt.wantScore {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if feedback != tt.wantFeedback {
				t.Errorf("feedback = %q, want %q", feedback, tt.wantFeedback)
			}
		})
	}
}
