// internal/i18n/i18n.go
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	LangPtBR = "pt_BR"
	LangEn   = "en"
)

type I18n struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
	defaultLang  string
}

var instance *I18n
var once sync.Once

// Initialize loads the embedded locales. defaultLang is used when a key is
// missing in the requested language.
func Initialize(defaultLang string) error {
	var err error
	once.Do(func() {
		if defaultLang == "" {
			defaultLang = LangPtBR
		}
		instance = &I18n{
			translations: make(map[string]map[string]string),
			defaultLang:  defaultLang,
		}
		err = instance.LoadTranslations()
	})
	return err
}

func (i *I18n) LoadTranslations() error {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("failed to list locales: %w", err)
	}

	for _, entry := range entries {
		file := entry.Name()
		lang := strings.TrimSuffix(file, ".json")

		data, err := localeFS.ReadFile(path.Join("locales", file))
		if err != nil {
			return fmt.Errorf("failed to read locale file %s: %w", file, err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to unmarshal locale file %s: %w", file, err)
		}

		i.mu.Lock()
		i.translations[lang] = translations
		i.mu.Unlock()
	}

	return nil
}

func (i *I18n) T(lang, key string, args ...interface{}) string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	// Try to get translation for requested language
	if translations, exists := i.translations[lang]; exists {
		if text, exists := translations[key]; exists {
			if len(args) > 0 {
				return fmt.Sprintf(text, args...)
			}
			return text
		}
	}

	// Fallback to default language
	if lang != i.defaultLang {
		if translations, exists := i.translations[i.defaultLang]; exists {
			if text, exists := translations[key]; exists {
				if len(args) > 0 {
					return fmt.Sprintf(text, args...)
				}
				return text
			}
		}
	}

	// Return key if no translation found
	return key
}

// Global functions
func T(lang, key string, args ...interface{}) string {
	if instance != nil {
		return instance.T(lang, key, args...)
	}
	return key
}

func DefaultLang() string {
	if instance == nil {
		return LangPtBR
	}
	return instance.defaultLang
}

// ParseAcceptLanguage maps an Accept-Language header onto a supported locale.
func ParseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.Split(part, ";")[0]))
		switch {
		case tag == "pt" || strings.HasPrefix(tag, "pt-") || strings.HasPrefix(tag, "pt_"):
			return LangPtBR
		case tag == "en" || strings.HasPrefix(tag, "en-") || strings.HasPrefix(tag, "en_"):
			return LangEn
		}
	}
	return DefaultLang()
}

func GetSupportedLanguages() []string {
	if instance == nil {
		return []string{LangPtBR}
	}

	instance.mu.RLock()
	defer instance.mu.RUnlock()

	langs := make([]string, 0, len(instance.translations))
	for lang := range instance.translations {
		langs = append(langs, lang)
	}
	return langs
}
