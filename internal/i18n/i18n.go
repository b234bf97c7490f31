// Package i18n serves the user-facing string tables. Catalogs are static TOML
// files, one per language, embedded in the binary.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var locales embed.FS

// DefaultLanguage is used when no catalog matches a request.
const DefaultLanguage = "en"

// Catalog is the string table of one language, grouped by section.
type Catalog struct {
	Code    string                       `toml:"code" json:"code"`
	Display string                       `toml:"display" json:"display"`
	UI      map[string]map[string]string `toml:"ui" json:"ui"`
}

// Bundle holds every loaded catalog.
type Bundle struct {
	catalogs map[string]*Catalog
	codes    []string
	matcher  language.Matcher
}

// Load reads the embedded catalogs.
func Load() (*Bundle, error) {
	return LoadFS(locales, "locales")
}

// LoadFS reads every *.toml catalog in dir of fsys. The default language
// must be present and is matched when nothing else fits.
func LoadFS(fsys fs.FS, dir string) (*Bundle, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalogs: %w", err)
	}

	b := &Bundle{catalogs: make(map[string]*Catalog)}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".toml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var c Catalog
		if _, err := toml.Decode(string(data), &c); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Name(), err)
		}
		if c.Code == "" {
			c.Code = strings.TrimSuffix(e.Name(), ".toml")
		}
		c.Code = NormalizeCode(c.Code)
		b.catalogs[c.Code] = &c
	}
	if _, ok := b.catalogs[DefaultLanguage]; !ok {
		return nil, errors.New("default language catalog missing")
	}

	// The default goes first so the matcher falls back to it.
	b.codes = append(b.codes, DefaultLanguage)
	for code := range b.catalogs {
		if code != DefaultLanguage {
			b.codes = append(b.codes, code)
		}
	}
	sort.Strings(b.codes[1:])

	tags := make([]language.Tag, 0, len(b.codes))
	for _, code := range b.codes {
		tags = append(tags, tagFor(code))
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

// NormalizeCode lower-cases a language code and uses "_" as separator, so
// "zh-CN" and "zh_cn" name the same catalog.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", "_"))
}

func tagFor(code string) language.Tag {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return language.Und
	}
	return tag
}

// Languages returns the available codes, default first.
func (b *Bundle) Languages() []string {
	return append([]string(nil), b.codes...)
}

// Has reports whether a catalog exists for code.
func (b *Bundle) Has(code string) bool {
	_, ok := b.catalogs[NormalizeCode(code)]
	return ok
}

// Catalog returns the catalog for code, or the default catalog.
func (b *Bundle) Catalog(code string) *Catalog {
	if c, ok := b.catalogs[NormalizeCode(code)]; ok {
		return c
	}
	return b.catalogs[DefaultLanguage]
}

// Lookup returns the string for section and key in language code. Missing
// entries fall back to the default language, then to the key itself.
func (b *Bundle) Lookup(code, section, key string) string {
	if s, ok := b.Catalog(code).UI[section][key]; ok {
		return s
	}
	if s, ok := b.catalogs[DefaultLanguage].UI[section][key]; ok {
		return s
	}
	return key
}

// Format looks up a string and substitutes {name} placeholders from args.
func (b *Bundle) Format(code, section, key string, args map[string]any) string {
	s := b.Lookup(code, section, key)
	if len(args) == 0 {
		return s
	}
	pairs := make([]string, 0, 2*len(args))
	for name, v := range args {
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Match picks the catalog that best fits an Accept-Language header value or
// a single language code.
func (b *Bundle) Match(accept string) string {
	if code := NormalizeCode(accept); b.Has(code) {
		return code
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := b.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(b.codes) {
		return DefaultLanguage
	}
	return b.codes[idx]
}
