// Package locale derives the forecast units and description language from the active locale.
package locale

import (
	"os"
	"strings"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"golang.org/x/text/language"
)

// imperialCodes are the locale codes that get imperial units; everything else is metric.
var imperialCodes = map[string]struct{}{
	"us": {},
	"lr": {},
	"mm": {},
}

// Source reports the current language tag of the platform.
type Source interface {
	CurrentLanguageTag() string
}

// ResolveUnits maps a two-letter locale code to a unit system.
func ResolveUnits(code string) model.Units {
	if _, ok := imperialCodes[strings.ToLower(code)]; ok {
		return model.UnitsImperial
	}
	return model.UnitsMetric
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the units and language to request. The language is the
// source's code passed through unchanged, and the units are derived from it.
func (r *Resolver) Resolve() (model.Units, string) {
	lang := r.source.CurrentLanguageTag()
	return ResolveUnits(lang), lang
}

// StaticSource always reports the same language code.
type StaticSource string

func (s StaticSource) CurrentLanguageTag() string { return string(s) }

// EnvSource reads the POSIX locale environment (LC_ALL, LC_MESSAGES, LANG)
// and reports its base language code, "en" when unset or unparseable.
type EnvSource struct {
	Getenv func(string) string
}

func NewEnvSource() EnvSource {
	return EnvSource{Getenv: os.Getenv}
}

func (s EnvSource) CurrentLanguageTag() string {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := getenv(key); v != "" {
			return baseLanguage(v)
		}
	}
	return "en"
}

// baseLanguage turns "pt_BR.UTF-8" or "de-AT" into "pt" / "de".
func baseLanguage(posix string) string {
	v, _, _ := strings.Cut(posix, ".")
	v, _, _ = strings.Cut(v, "@")
	v = strings.ReplaceAll(v, "_", "-")
	if v == "C" || v == "POSIX" {
		return "en"
	}
	tag, err := language.Parse(v)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}
