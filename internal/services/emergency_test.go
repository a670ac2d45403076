package services

import "testing"

func TestDetectEmergency(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected bool
	}{
		{"severe pain", "I have severe pain and bleeding", true},
		{"upper case", "My tooth was KNOCKED OUT at practice", true},
		{"mixed case", "there is an Abscess near my molar", true},
		{"apostrophe phrase", "I can't sleep because of my tooth", true},
		{"substring match", "my gums look swollen-ish", true},
		{"routine question", "How often should I floss?", false},
		{"empty", "", false},
		{"near miss", "the pain is mild", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectEmergency(tc.message); got != tc.expected {
				t.Errorf("DetectEmergency(%q) = %v, expected %v", tc.message, got, tc.expected)
			}
		})
	}
}

func TestDetectEmergency_EveryKeyword(t *testing.T) {
	for _, keyword := range EmergencyKeywords() {
		if !DetectEmergency("patient says: " + keyword + "!") {
			t.Errorf("expected keyword %q to be detected", keyword)
		}
	}
}
