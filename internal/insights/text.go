package insights

import (
	"strings"
	"unicode"
)

var positiveWords = map[string]struct{}{
	"love": {}, "proud": {}, "happy": {}, "grateful": {}, "joy": {}, "enjoy": {},
	"calm": {}, "strong": {}, "hope": {}, "excited": {}, "meaningful": {}, "good": {},
}

var negativeWords = map[string]struct{}{
	"afraid": {}, "angry": {}, "sad": {}, "guilty": {}, "stressed": {}, "tired": {},
	"regret": {}, "lost": {}, "hurt": {}, "anxious": {}, "lonely": {}, "bad": {},
}

var intentionWords = map[string]struct{}{
	"will": {}, "plan": {}, "going": {}, "start": {}, "commit": {}, "schedule": {},
	"try": {}, "intend": {}, "goal": {}, "tomorrow": {}, "week": {},
}

// tokenize lowercases text and splits it into a set of words.
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[strings.Trim(f, "'")] = struct{}{}
	}
	return out
}

func tone(words map[string]struct{}) string {
	pos, neg := 0, 0
	for w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	switch {
	case pos > 0 && neg > 0:
		return "mixed"
	case pos > 0:
		return "positive"
	case neg > 0:
		return "negative"
	default:
		return "neutral"
	}
}

func actionable(words map[string]struct{}) bool {
	for w := range words {
		if _, ok := intentionWords[w]; ok {
			return true
		}
	}
	return false
}
