package cmd

import (
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/dotcommander/capmux/internal/present"
)

var examples = map[string]string{
	"Route a citizen inquiry to the right office": `capmux "How do I renew my driver's license?"`,
	"Ask about a file through your providers":     `cat complaint.txt | capmux "which department handles this?"`,
	"Keep a thread going on a hosted agent":       `capmux --async --thread thread_abc "and what should I bring?"`,
	"Serve the chat API for a web page":           `capmux serve --listen :8080 --static-dir ./web | tee serve.log`,
}

func randomExample() string {
	keys := slices.Sorted(maps.Keys(examples))
	return keys[rand.IntN(len(keys))] //nolint:gosec
}

var (
	quotedRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe   = regexp.MustCompile(`\|`)
)

func cheapHighlighting(s present.Styles, code string) string {
	code = quotedRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
