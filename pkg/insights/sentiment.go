package insights

import (
	"context"
	"math"
	"strings"
)

// SentimentScorer scores text on a [-1, 1] scale
type SentimentScorer interface {
	// Score returns the sentiment of the text. Empty or indicator-free
	// text scores exactly 0.
	Score(ctx context.Context, text string) (float64, error)
}

// LexiconScorer is the deterministic fallback scorer. It counts positive
// and negative indicator words with negation handling, adds conversational
// cues and punctuation signals, and squashes the balance through tanh so a
// long transcript cannot saturate the scale from word count alone.
type LexiconScorer struct {
	positiveWords map[string]struct{}
	negativeWords map[string]struct{}
	neutralWords  map[string]struct{}
	negators      map[string]struct{}

	gratitudeCues  []string
	apologyCues    []string
	escalationCues []string
}

// NewLexiconScorer creates the fallback sentiment scorer
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{
		positiveWords: wordSet(
			"good", "great", "excellent", "thank", "thanks", "perfect", "satisfied", "happy",
			"wonderful", "amazing", "fantastic", "awesome", "love", "best", "brilliant",
			"outstanding", "superb", "pleased", "delighted", "impressed", "appreciate",
			"helpful", "resolved", "solution", "working", "fixed", "clear", "easy", "smooth",
			"efficient", "professional", "courteous", "patient", "understanding", "kind",
		),
		negativeWords: wordSet(
			"bad", "terrible", "awful", "hate", "angry", "frustrated", "problem", "issue",
			"horrible", "disgusting", "worst", "useless", "disappointed", "annoyed",
			"furious", "outraged", "unacceptable", "pathetic", "ridiculous", "stupid",
			"broken", "failed", "error", "wrong", "confusing", "difficult", "waste",
			"rude", "unhelpful", "slow", "incompetent", "disaster", "nightmare",
		),
		neutralWords: wordSet(
			"okay", "fine", "alright", "normal", "average", "standard", "regular",
		),
		negators: wordSet(
			"not", "no", "never", "don't", "dont", "can't", "cant", "won't", "wont",
			"isn't", "isnt", "wasn't", "wasnt", "didn't", "didnt", "couldn't", "couldnt",
		),
		gratitudeCues: []string{
			"thank you", "thanks for", "appreciate your", "appreciate the",
		},
		apologyCues: []string{
			"sorry for", "sorry about", "apologize for", "apologies for",
		},
		escalationCues: []string{
			"speak to your manager", "speak to a manager", "cancel my account",
			"cancel my subscription", "file a complaint", "escalate this",
		},
	}
}

// Score computes the lexicon sentiment of text
func (s *LexiconScorer) Score(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	words := tokenize(text)
	lowered := strings.ToLower(text)

	var positiveCount, negativeCount, neutralCount float64
	negated := false
	for _, word := range words {
		if _, ok := s.negators[word]; ok {
			negated = true
			continue
		}

		switch {
		case contains(s.positiveWords, word):
			if negated {
				negativeCount++
			} else {
				positiveCount++
			}
		case contains(s.negativeWords, word):
			if negated {
				positiveCount++
			} else {
				negativeCount++
			}
		case contains(s.neutralWords, word):
			neutralCount++
		}
		negated = false
	}

	// Conversational cues carry more signal than isolated words. An agent
	// apology reads as service recovery, not as negative sentiment.
	positiveScore := positiveCount +
		float64(countOccurrences(lowered, s.gratitudeCues)) +
		float64(countOccurrences(lowered, s.apologyCues))*0.5
	negativeScore := negativeCount +
		float64(countOccurrences(lowered, s.escalationCues))*1.5

	positiveScore += float64(strings.Count(text, "!")) * 0.2
	negativeScore += float64(strings.Count(text, "?")) * 0.1

	total := positiveScore + negativeScore + neutralCount
	if total == 0 {
		return 0, nil
	}

	return math.Tanh((positiveScore - negativeScore) / math.Sqrt(total)), nil
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, word string) bool {
	_, ok := set[word]
	return ok
}

func countOccurrences(text string, phrases []string) int {
	count := 0
	for _, phrase := range phrases {
		count += strings.Count(text, phrase)
	}
	return count
}
