package reply

import "testing"

func TestIsHighRisk(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"my husband was detained at the airport", true},
		{"I think I will be deported next week", true},
		{"there was an accident and he is in hospital", true},
		{"my father passed away, I need to cancel", true},
		{"I need a family visa for my wife", false},
		{"how much is a visit visa?", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsHighRisk(tt.body); got != tt.want {
			t.Errorf("IsHighRisk(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}
