package services

import "strings"

// emergencyKeywords are clinical red-flag phrases. Matching is a plain
// case-insensitive substring scan: a coarse filter, not a classifier.
var emergencyKeywords = []string{
	"severe pain",
	"bleeding",
	"swollen",
	"emergency",
	"accident",
	"broken tooth",
	"knocked out",
	"unbearable",
	"can't eat",
	"can't sleep",
	"infection",
	"abscess",
}

// EmergencyAdvisory is returned verbatim instead of a model response when a
// message matches an emergency keyword.
const EmergencyAdvisory = `⚠️ IMPORTANT: Based on your message, this may require immediate attention. Please contact the clinic directly at your earliest convenience. If this is a dental emergency (severe pain, bleeding, or trauma), please call our emergency line or visit the nearest emergency dental clinic immediately.

For reference, common dental emergencies include:
- Severe, persistent toothache
- Knocked-out tooth
- Broken or chipped tooth with pain
- Severe bleeding that won't stop
- Swelling in the mouth or face
- Abscess or infection

Our clinic staff will be able to provide immediate guidance and schedule an urgent appointment if needed.`

// DetectEmergency reports whether message contains any emergency keyword.
func DetectEmergency(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// EmergencyKeywords returns a copy of the keyword list.
func EmergencyKeywords() []string {
	return append([]string(nil), emergencyKeywords...)
}
