// Package greeting composes localized, time-of-day aware greetings for
// recognized visitors.
package greeting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LakePipiCAKA/self-discovery/internal/util/timezone"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Composer renders greetings from the locale bundle.
type Composer struct {
	bundle      *i18n.Bundle
	localizers  map[string]*i18n.Localizer
	defaultLang string
}

// NewComposer loads all JSON message files from localesDir.
func NewComposer(localesDir, defaultLang string) (*Composer, error) {
	if defaultLang == "" {
		defaultLang = "en"
	}

	bundle := i18n.NewBundle(language.MustParse(defaultLang))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	c := &Composer{
		bundle:      bundle,
		localizers:  make(map[string]*i18n.Localizer),
		defaultLang: defaultLang,
	}

	files, err := os.ReadDir(localesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read locales directory %s: %w", localesDir, err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		langCode := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if _, err := bundle.LoadMessageFile(filepath.Join(localesDir, file.Name())); err != nil {
			return nil, fmt.Errorf("failed to load locale %s: %w", file.Name(), err)
		}
		c.localizers[langCode] = i18n.NewLocalizer(bundle, langCode, defaultLang)
		log.Debugf("Loaded locale %q", langCode)
	}

	if _, ok := c.localizers[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no message file in %s", defaultLang, localesDir)
	}

	return c, nil
}

// Languages lists the loaded locale codes.
func (c *Composer) Languages() []string {
	out := make([]string, 0, len(c.localizers))
	for code := range c.localizers {
		out = append(out, code)
	}
	return out
}

// periodMessageID maps the capture period to a message key.
func periodMessageID(period string) string {
	switch period {
	case timezone.PeriodMorning:
		return "greeting.morning"
	case timezone.PeriodAfternoon:
		return "greeting.afternoon"
	case timezone.PeriodEvening:
		return "greeting.evening"
	default:
		return "greeting.default"
	}
}

// Greet renders the greeting line for a visitor in the requested language,
// falling back to the default language for unknown codes.
func (c *Composer) Greet(lang string, displayName string, period string) string {
	loc, ok := c.localizers[lang]
	if !ok {
		loc = c.localizers[c.defaultLang]
	}

	msg, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID: periodMessageID(period),
		TemplateData: map[string]interface{}{
			"Name": displayName,
		},
	})
	// go-i18n hands back the default-language rendering together with a
	// MessageNotFoundErr when the requested language lacks the key; that
	// message is still the right thing to show.
	if msg == "" {
		log.Warnf("Failed to localize greeting: %v", err)
		return fmt.Sprintf("Hello, %s!", displayName)
	}
	return msg
}

// Localize renders an arbitrary message key for UI strings.
func (c *Composer) Localize(lang, messageID string, data map[string]interface{}) string {
	loc, ok := c.localizers[lang]
	if !ok {
		loc = c.localizers[c.defaultLang]
	}
	msg, _ := loc.Localize(&i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if msg == "" {
		return messageID
	}
	return msg
}
