package signing

import "testing"

func TestMatchesCommonNameSuffix(t *testing.T) {
	tests := []struct {
		cn         string
		constraint string
		want       bool
	}{
		{"a.rdobeheer.nl", ".rdobeheer.nl", true},
		{"a.rdobeheer.nl", "rdobeheer.nl", true},
		{"rdobeheer.nl", "rdobeheer.nl", true},
		{"a.b.rdobeheer.nl", ".rdobeheer.nl", true},
		{"A.RDOBEHEER.NL", ".rdobeheer.nl", false},
		{"a.rdobeheer.nl", ".RDOBEHEER.nl", false},
		{"Leaf", "leaf", false},
		{"a.rdobeheer.nl", ".rdobeheer.nl.malicioushacker.nl", false},
		{"a.rdobeheer.nl", ".coronacheck.nl", false},
		{"evilrdobeheer.nl", "rdobeheer.nl", false},
		{"evilrdobeheer.nl", ".rdobeheer.nl", false},
		{"rdobeheer.nl.attacker.nl", "rdobeheer.nl", false},
		{"rdobeheer.nl", ".rdobeheer.nl", false},
		{"leaf", "leaf", true},
		{"", "", true},
		{"anything", "", true},
		{"", ".rdobeheer.nl", false},
	}

	for _, tt := range tests {
		if got := MatchesCommonNameSuffix(tt.cn, tt.constraint); got != tt.want {
			t.Errorf("MatchesCommonNameSuffix(%q, %q) = %v, want %v", tt.cn, tt.constraint, got, tt.want)
		}
	}
}
