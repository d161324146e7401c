// Package eliza implements the keyword reply engine: a rule table of
// patterns and canned responses with pronoun reflection, in the style of
// the classic Eliza matcher. Replies are deterministic for a given seed.
package eliza

import (
	"math/rand"
	"regexp"
	"strings"
)

// rule pairs an input pattern with its candidate responses. A "%s" in a
// response is filled with the reflected text of the first capture group.
type rule struct {
	pattern   *regexp.Regexp
	responses []string
}

var rules = []rule{
	{
		pattern: regexp.MustCompile(`\b(?:hello|hi|hey|howdy)\b`),
		responses: []string{
			"Hello! How are you feeling today?",
			"Hi there. What would you like to talk about?",
			"Hello. What's on your mind?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bi need (.+)`),
		responses: []string{
			"Why do you need %s?",
			"Would it really help you to get %s?",
			"Are you sure you need %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bwhy don'?t you (.+)`),
		responses: []string{
			"Do you really think I don't %s?",
			"Perhaps eventually I will %s.",
			"Do you want me to %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bwhy can'?t i (.+)`),
		responses: []string{
			"Do you think you should be able to %s?",
			"What would it mean if you could %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bi(?:'m| am) (.+)`),
		responses: []string{
			"How does being %s make you feel?",
			"Why do you think you are %s?",
			"How long have you been %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bi feel (.+)`),
		responses: []string{
			"Tell me more about feeling %s.",
			"Do you often feel %s?",
			"What usually makes you feel %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bi want (.+)`),
		responses: []string{
			"What would it mean to you if you got %s?",
			"Why do you want %s?",
			"Suppose you got %s soon. What then?",
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:mother|father|family|parent)s?\b`),
		responses: []string{
			"Tell me more about your family.",
			"How do you get along with your family?",
			"Does your family come up often in your thoughts?",
		},
	},
	{
		pattern: regexp.MustCompile(`\b(?:computer|machine|robot)s?\b`),
		responses: []string{
			"Do computers worry you?",
			"Are you talking about me in particular?",
			"How do you feel about machines?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bbecause\b`),
		responses: []string{
			"Is that the real reason?",
			"What other reasons come to mind?",
			"Does that reason explain anything else?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bsorry\b`),
		responses: []string{
			"There's no need to apologize.",
			"What feelings do you have when you apologize?",
		},
	},
	{
		pattern: regexp.MustCompile(`\byes\b`),
		responses: []string{
			"You seem quite certain.",
			"I see. Can you tell me more?",
		},
	},
	{
		pattern: regexp.MustCompile(`\bno\b`),
		responses: []string{
			"Why not?",
			"Are you saying no just to be negative?",
		},
	},
	{
		pattern: regexp.MustCompile(`\byou (?:are|seem) (.+)`),
		responses: []string{
			"What makes you think I am %s?",
			"Does it please you to believe I am %s?",
		},
	},
	{
		pattern: regexp.MustCompile(`\?\s*$`),
		responses: []string{
			"That's an interesting question. What do you think?",
			"Why do you ask?",
			"What answer would please you most?",
		},
	},
}

// fallbacks are used when no rule matches. Reply never returns empty text.
var fallbacks = []string{
	"Please tell me more.",
	"I see. Go on.",
	"Can you elaborate on that?",
	"How does that make you feel?",
	"Very interesting. Why do you say that?",
}

// reflections swap first and second person when echoing fragments back.
var reflections = map[string]string{
	"i":        "you",
	"me":       "you",
	"my":       "your",
	"mine":     "yours",
	"am":       "are",
	"i'm":      "you're",
	"i'd":      "you would",
	"i've":     "you have",
	"you":      "I",
	"your":     "my",
	"yours":    "mine",
	"are":      "am",
	"you're":   "I'm",
	"yourself": "myself",
	"myself":   "yourself",
}

// Engine generates keyword-matched replies. Safe for use from a single
// goroutine; the dispatcher serializes calls.
type Engine struct {
	rng *rand.Rand
}

// New creates an Engine seeded from src. Pass a fixed seed for
// reproducible response selection.
func New(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Reply produces a response for the given user text. It always returns
// non-empty text: when no rule matches, a generic prompt is used.
func (e *Engine) Reply(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	trimmed := strings.TrimRight(normalized, ".!")

	for _, r := range rules {
		match := r.pattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		response := r.responses[e.rng.Intn(len(r.responses))]
		if strings.Contains(response, "%s") && len(match) > 1 {
			response = strings.Replace(response, "%s", reflect(match[1]), 1)
		}
		return response
	}

	return fallbacks[e.rng.Intn(len(fallbacks))]
}

// reflect rewrites a captured fragment from the speaker's point of view.
func reflect(fragment string) string {
	words := strings.Fields(fragment)
	for i, word := range words {
		if swapped, ok := reflections[word]; ok {
			words[i] = swapped
		}
	}
	return strings.Join(words, " ")
}
