package session

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want TurnKind
	}{
		{"quit", KindTermination},
		{"  EXIT ", KindTermination},
		{"Stop", KindTermination},
		{"finish", KindTermination},
		{"next", KindNavigation},
		{"Continue", KindNavigation},
		{"yes", KindNavigation},
		{"ready", KindNavigation},
		{"okay", KindNavigation},
		{"yep", KindNavigation},
		{"what does this mean?", KindExploration},
		{"I am not sure?", KindExploration},
		{"How do firewalls work", KindExploration},
		{"is it TCP", KindExploration},
		{"can't be sure", KindExploration},
		{"island nations use undersea cables", KindAnswer},
		{"doing my best: port 80", KindAnswer},
		{"A port is a logical endpoint.", KindAnswer},
		{"quit now", KindAnswer},
		{"next?", KindExploration},
		{"", KindUnrecognized},
		{"   \t\n", KindUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Classify(tt.in); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTurnKindString(t *testing.T) {
	tests := []struct {
		kind TurnKind
		want string
	}{
		{KindTermination, "termination"},
		{KindNavigation, "navigation"},
		{KindExploration, "exploration"},
		{KindAnswer, "answer"},
		{KindUnrecognized, "unrecognized"},
		{TurnKind(42), "unrecognized"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("TurnKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
