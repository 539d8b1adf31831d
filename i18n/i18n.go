// Package i18n holds the recommendation texts shown with a verdict.
package i18n

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/irrigation/irrigation"
)

// English is the fallback language
const English = "en"

// Message fields per verdict
const (
	FieldTitle  = "title"
	FieldAdvice = "advice"
)

// Keys outside the verdict messages
const (
	KeyUnknownCrop    = "crop.unknown"
	KeyRegionMismatch = "region.mismatch"
)

//go:embed messages.yaml
var messagesYAML []byte

// Catalog maps language -> key -> template
type Catalog struct {
	messages map[string]map[string]string
	langs    []string
	matcher  language.Matcher
}

// Default returns the embedded catalog. It panics if the embedded file is
// broken, which the package tests rule out.
func Default() *Catalog {
	c, err := Parse(messagesYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse loads a catalog; English must be present
func Parse(data []byte) (*Catalog, error) {
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	if _, ok := messages[English]; !ok {
		return nil, fmt.Errorf("messages have no %q table", English)
	}

	langs := make([]string, 0, len(messages))
	for lang := range messages {
		if _, err := language.Parse(lang); err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", lang, err)
		}
		langs = append(langs, lang)
	}
	// English first so it is the matcher's default
	sort.Slice(langs, func(i, j int) bool {
		if langs[i] == English || langs[j] == English {
			return langs[i] == English
		}
		return langs[i] < langs[j]
	})

	tags := make([]language.Tag, len(langs))
	for i, l := range langs {
		tags[i] = language.Make(l)
	}

	return &Catalog{
		messages: messages,
		langs:    langs,
		matcher:  language.NewMatcher(tags),
	}, nil
}

// Languages lists the supported languages, English first
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.langs...)
}

// Lookup resolves key in lang, then in English, then returns key itself
func (c *Catalog) Lookup(lang, key string) string {
	if msg, ok := c.messages[lang][key]; ok {
		return msg
	}
	if msg, ok := c.messages[English][key]; ok {
		return msg
	}
	return key
}

// Render looks up key and substitutes {crop}
func (c *Catalog) Render(lang, key, crop string) string {
	return strings.ReplaceAll(c.Lookup(lang, key), "{crop}", crop)
}

// Match picks the best supported language for an Accept-Language header or
// a bare tag such as "hi" or "es-MX"; anything unusable yields English.
func (c *Catalog) Match(accept string) string {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return c.langs[idx]
}

// VerdictKey builds the message key of a verdict field, e.g. "high.title"
func VerdictKey(v irrigation.Verdict, field string) string {
	var b strings.Builder
	for i, r := range string(v) {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String()) + "." + field
}

// Recommendation is the localized text for one verdict
type Recommendation struct {
	Language string `json:"language"`
	Title    string `json:"title"`
	Advice   string `json:"advice"`
}

// Recommend renders title and advice for v
func (c *Catalog) Recommend(lang string, v irrigation.Verdict, crop string) Recommendation {
	return Recommendation{
		Language: lang,
		Title:    c.Render(lang, VerdictKey(v, FieldTitle), crop),
		Advice:   c.Render(lang, VerdictKey(v, FieldAdvice), crop),
	}
}
