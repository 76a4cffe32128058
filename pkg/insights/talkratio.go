package insights

import (
	"strings"
)

const (
	agentPrefix    = "Agent:"
	customerPrefix = "Customer:"
)

// SplitSpeakerTurns separates a transcript into agent and customer text.
// Turns are lines prefixed with "Agent:" or "Customer:"; unprefixed lines
// are ignored.
func SplitSpeakerTurns(transcript string) (agentText, customerText string) {
	var agentParts, customerParts []string

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, agentPrefix):
			agentParts = append(agentParts, strings.TrimSpace(line[len(agentPrefix):]))
		case strings.HasPrefix(line, customerPrefix):
			customerParts = append(customerParts, strings.TrimSpace(line[len(customerPrefix):]))
		}
	}

	return strings.Join(agentParts, " "), strings.Join(customerParts, " ")
}

// TalkRatioCalculator measures how much of a conversation the agent spoke.
// Multi-word filler entries such as "you know" match as token sequences,
// single words as a set lookup.
type TalkRatioCalculator struct {
	fillerWords   map[string]struct{}
	fillerPhrases [][]string
}

// NewTalkRatioCalculator creates a calculator that ignores the given filler
// words and phrases when counting
func NewTalkRatioCalculator(fillerWords []string) *TalkRatioCalculator {
	c := &TalkRatioCalculator{fillerWords: make(map[string]struct{}, len(fillerWords))}
	for _, entry := range fillerWords {
		tokens := tokenize(entry)
		switch len(tokens) {
		case 0:
		case 1:
			c.fillerWords[tokens[0]] = struct{}{}
		default:
			c.fillerPhrases = append(c.fillerPhrases, tokens)
		}
	}
	return c
}

// Ratio returns agent substantive words divided by total substantive words.
// A transcript with no parseable turns scores 0.5.
func (c *TalkRatioCalculator) Ratio(transcript string) float64 {
	agentText, customerText := SplitSpeakerTurns(transcript)

	agentWords := c.countSubstantive(agentText)
	customerWords := c.countSubstantive(customerText)
	total := agentWords + customerWords

	if total == 0 {
		return 0.5
	}
	return float64(agentWords) / float64(total)
}

func (c *TalkRatioCalculator) countSubstantive(text string) int {
	tokens := tokenize(text)
	count := 0
	for i := 0; i < len(tokens); {
		if skip := c.phraseAt(tokens, i); skip > 0 {
			i += skip
			continue
		}
		if _, filler := c.fillerWords[tokens[i]]; !filler {
			count++
		}
		i++
	}
	return count
}

// phraseAt returns the length of a filler phrase starting at tokens[i], or
// zero when none matches
func (c *TalkRatioCalculator) phraseAt(tokens []string, i int) int {
	for _, phrase := range c.fillerPhrases {
		if i+len(phrase) > len(tokens) {
			continue
		}
		matched := true
		for j, word := range phrase {
			if tokens[i+j] != word {
				matched = false
				break
			}
		}
		if matched {
			return len(phrase)
		}
	}
	return 0
}
