// Package catalog builds the static keyword catalog advertised to
// clients.
//
// The catalog is constructed once at startup from the universe of
// keywords the bundled engine ships models for, filtered to the
// configured language. It is immutable afterwards and shared read-only by
// every session without locking.
package catalog

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/harkwake/hark/internal/wyoming"
)

// DefaultLanguage is the language used when the configured one has no
// keywords.
const DefaultLanguage = "en"

// suggestThreshold is the minimum Jaro-Winkler similarity for a keyword
// name to be offered as a "did you mean" suggestion.
const suggestThreshold = 0.8

// Keyword is one selectable wake word: a unique name plus the language
// tag of its model.
type Keyword struct {
	Name     string
	Language string
}

// universe lists every keyword the engine ships a built-in model for.
// Names are unique; the engine adapter maps them to model identifiers.
var universe = []Keyword{
	{Name: "alexa", Language: "en"},
	{Name: "americano", Language: "en"},
	{Name: "blueberry", Language: "en"},
	{Name: "bumblebee", Language: "en"},
	{Name: "computer", Language: "en"},
	{Name: "grapefruit", Language: "en"},
	{Name: "grasshopper", Language: "en"},
	{Name: "hey google", Language: "en"},
	{Name: "hey siri", Language: "en"},
	{Name: "jarvis", Language: "en"},
	{Name: "ok google", Language: "en"},
	{Name: "picovoice", Language: "en"},
	{Name: "porcupine", Language: "en"},
	{Name: "terminator", Language: "en"},
}

// Catalog is the immutable set of keywords active for this process.
type Catalog struct {
	language string
	keywords map[string]Keyword
	names    []string // sorted
}

// Build enumerates the keywords available for language. When none match,
// it falls back to a single default keyword in [DefaultLanguage] and logs
// the degraded condition.
func Build(language, defaultKeyword string) *Catalog {
	keywords := make(map[string]Keyword)
	for _, kw := range universe {
		if kw.Language == language {
			keywords[kw.Name] = kw
		}
	}

	if len(keywords) == 0 {
		slog.Warn("no keywords available for language, falling back to default keyword",
			"language", language,
			"fallback_keyword", defaultKeyword,
			"fallback_language", DefaultLanguage,
		)
		language = DefaultLanguage
		keywords[defaultKeyword] = Keyword{Name: defaultKeyword, Language: DefaultLanguage}
	}

	names := make([]string, 0, len(keywords))
	for name := range keywords {
		names = append(names, name)
	}
	slices.Sort(names)

	return &Catalog{language: language, keywords: keywords, names: names}
}

// Language returns the language tag the catalog was built for.
func (c *Catalog) Language() string { return c.language }

// Get returns the keyword with the given name.
func (c *Catalog) Get(name string) (Keyword, bool) {
	kw, ok := c.keywords[name]
	return kw, ok
}

// Contains reports whether name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.keywords[name]
	return ok
}

// Names returns the keyword names in sorted order. The returned slice is
// shared; callers must not modify it.
func (c *Catalog) Names() []string { return c.names }

// Suggest returns the catalog keyword most similar to name, for
// diagnostics when a client requests an unknown keyword. Returns "" when
// nothing is similar enough.
func (c *Catalog) Suggest(name string) string {
	best := ""
	bestScore := suggestThreshold
	lower := strings.ToLower(name)
	for _, candidate := range c.names {
		if score := matchr.JaroWinkler(lower, candidate, false); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}

// Info builds the capability description advertised to clients: one wake
// program with one model entry per catalog keyword.
func (c *Catalog) Info(version string) wyoming.Info {
	attribution := wyoming.Attribution{
		Name: "Picovoice",
		URL:  "https://github.com/Picovoice/porcupine",
	}

	models := make([]wyoming.WakeModel, 0, len(c.names))
	for _, name := range c.names {
		kw := c.keywords[name]
		models = append(models, wyoming.WakeModel{
			Name:        kw.Name,
			Description: kw.Name + " (" + kw.Language + ")",
			Phrase:      kw.Name,
			Attribution: attribution,
			Installed:   true,
			Languages:   []string{kw.Language},
			Version:     "3.0.0",
		})
	}

	return wyoming.Info{
		Wake: []wyoming.WakeProgram{{
			Name:        "hark",
			Description: "On-device wake word detection powered by deep learning",
			Attribution: attribution,
			Installed:   true,
			Version:     version,
			Models:      models,
		}},
	}
}
