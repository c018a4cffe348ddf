// Package locale holds the display strings, quick replies and fallback replies
// for each supported language.
package locale

import (
	"sort"
	"strings"

	"github.com/hay-kot/chatwidget/internal/core/fallback"
)

// Tag is a base language tag such as "pt" or "en".
type Tag string

// DefaultTag is used when no language, or an unknown one, is requested.
const DefaultTag Tag = "pt"

// Entry is the read-only string set for one language.
type Entry struct {
	Tag               Tag
	BotName           string
	WelcomeText       string
	Placeholder       string
	QuickReplies      []string
	QuickRepliesLabel string
	EscalateLabel     string
	OnlineLabel       string
	// TimeFormat formats message timestamps for display.
	TimeFormat string

	FallbackRules   []fallback.Spec
	FallbackDefault string
}

// Fallback builds the resolver for this entry's fallback table.
func (e Entry) Fallback() *fallback.Resolver {
	return fallback.FromSpecs(e.FallbackDefault, e.FallbackRules)
}

// Catalog maps tags to entries.
type Catalog struct {
	entries map[Tag]Entry
	def     Tag
}

// NewCatalog builds a catalog. def must be one of the entries' tags.
func NewCatalog(def Tag, entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[Tag]Entry, len(entries)), def: def}
	for _, e := range entries {
		c.entries[e.Tag] = e
	}
	return c
}

// Default returns the built-in pt/en/es catalog.
func Default() *Catalog {
	return NewCatalog(DefaultTag, portuguese, english, spanish)
}

// Normalize reduces a tag like "pt-BR" or "EN_us" to its base tag.
func Normalize(tag string) Tag {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return Tag(tag)
}

// Lookup returns the entry for tag, falling back to the catalog default.
// The second value reports whether tag itself was found.
func (c *Catalog) Lookup(tag string) (Entry, bool) {
	if e, ok := c.entries[Normalize(tag)]; ok {
		return e, true
	}
	return c.entries[c.def], false
}

// DefaultTag returns the catalog's default tag.
func (c *Catalog) DefaultTag() Tag {
	return c.def
}

// Tags returns the supported tags, sorted.
func (c *Catalog) Tags() []Tag {
	tags := make([]Tag, 0, len(c.entries))
	for t := range c.entries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
