// Package i18n renders localized limitation failure reasons.
//
// Locale files are embedded YAML maps of message key to a printf-style
// template. en-US is the base locale; keys missing from another locale fall
// back to it.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other locale falls back to.
const BaseLocale = "en-US"

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds the compiled message catalog for every loaded locale.
type Bundle struct {
	builder *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
	keys    map[string]bool
}

var defaultBundle = mustLoadEmbedded()

// Default returns the process-wide embedded bundle.
func Default() *Bundle {
	return defaultBundle
}

// LoadFromFS loads every locales/*.yaml file from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no locale files found")
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	b := &Bundle{
		builder: catalog.NewBuilder(catalog.Fallback(base)),
		keys:    make(map[string]bool),
	}

	files := make([]localeFile, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", p, err)
		}
		var f localeFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", p, err)
		}
		if want := strings.TrimSuffix(path.Base(p), ".yaml"); f.Locale != want {
			return nil, fmt.Errorf("locale %s: declared locale %q must match file name", p, f.Locale)
		}
		files = append(files, f)
	}

	// Base locale first so the matcher prefers it on ties.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Locale == BaseLocale && files[j].Locale != BaseLocale
	})
	if len(files) == 0 || files[0].Locale != BaseLocale {
		return nil, fmt.Errorf("base locale %s is not defined", BaseLocale)
	}

	for _, f := range files {
		tag, err := language.Parse(f.Locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", f.Locale, err)
		}
		b.tags = append(b.tags, tag)
		for key, msg := range f.Messages {
			if err := b.builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("locale %s: set %q: %w", f.Locale, key, err)
			}
			b.keys[key] = true
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func mustLoadEmbedded() *Bundle {
	b, err := LoadFromFS(embeddedLocales)
	if err != nil {
		panic(err)
	}
	return b
}

// Locales returns the loaded locale tags, base locale first.
func (b *Bundle) Locales() []string {
	out := make([]string, len(b.tags))
	for i, t := range b.tags {
		out[i] = t.String()
	}
	return out
}

// Printer returns a printer for the closest supported locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = b.tags[0]
	}
	_, idx, _ := b.matcher.Match(tag)
	return message.NewPrinter(b.tags[idx], message.Catalog(b.builder))
}

// Translate renders key for locale. Unknown keys render as the key itself
// followed by the arguments.
func (b *Bundle) Translate(locale, key string, args ...any) string {
	if !b.keys[key] {
		if len(args) == 0 {
			return key
		}
		return key + ": " + fmt.Sprint(args...)
	}
	return b.Printer(locale).Sprintf(key, args...)
}

// Localizer renders reasons for one fixed locale.
type Localizer struct {
	bundle  *Bundle
	printer *message.Printer
}

// NewLocalizer binds a bundle to a locale.
func NewLocalizer(bundle *Bundle, locale string) *Localizer {
	if bundle == nil {
		bundle = Default()
	}
	return &Localizer{bundle: bundle, printer: bundle.Printer(locale)}
}

// Reason renders a reason key with its arguments.
func (l *Localizer) Reason(key string, args ...any) string {
	if !l.bundle.keys[key] {
		return l.bundle.Translate(BaseLocale, key, args...)
	}
	return l.printer.Sprintf(key, args...)
}
