package recommend

// Nudge thresholds on the target call's own insights
const (
	negativeSentiment  = 0.0
	strongSentiment    = 0.5
	dominantTalkRatio  = 0.7
	passiveTalkRatio   = 0.3
	coachingNudgeCount = 3
)

var defaultNudges = []string{
	"Summarize agreed next steps before closing the call.",
	"Confirm the customer's primary goal in their own words.",
	"Close with a specific follow-up date and a named owner.",
}

// coachingNudges derives exactly three nudges from a call's sentiment and
// talk ratio. Condition-driven nudges come first; the list is padded
// deterministically from the defaults.
func coachingNudges(sentiment, talkRatio float64) []string {
	var nudges []string

	if sentiment < negativeSentiment {
		nudges = append(nudges, "Acknowledge the customer's frustration early and validate it before proposing a fix.")
	}
	if sentiment > strongSentiment {
		nudges = append(nudges, "Sentiment is strong. Reinforce what worked and open an expansion conversation.")
	}
	if talkRatio > dominantTalkRatio {
		nudges = append(nudges, "You carried most of the conversation. Pause more and invite the customer to elaborate.")
	}
	if talkRatio < passiveTalkRatio {
		nudges = append(nudges, "The customer drove the call. Steer the agenda with clarifying questions and next steps.")
	}

	for _, nudge := range defaultNudges {
		if len(nudges) >= coachingNudgeCount {
			break
		}
		nudges = append(nudges, nudge)
	}

	return nudges[:coachingNudgeCount]
}
