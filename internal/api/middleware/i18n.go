package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	sessionLanguageKey = "language"
	contextLanguageKey = "language"
	contextTranslator  = "translator"
)

// Translator übersetzt Fehlercodes in Meldungen für den Benutzer
type Translator struct {
	bundle      *i18n.Bundle
	localizers  map[string]*i18n.Localizer
	matcher     language.Matcher
	tags        []language.Tag
	defaultLang string
}

// NewTranslator lädt alle eingebetteten Übersetzungsdateien
func NewTranslator(defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	defaultTag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	t := &Translator{
		bundle:      bundle,
		localizers:  make(map[string]*i18n.Localizer),
		defaultLang: defaultTag.String(),
	}

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}
	tags := []language.Tag{defaultTag}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load locale %s: %w", file, err)
		}
		// Sprachcode aus dem Dateinamen, z.B. "de.json" -> "de"
		langCode := strings.TrimSuffix(path.Base(file), path.Ext(file))
		t.localizers[langCode] = i18n.NewLocalizer(bundle, langCode)
		if langCode != t.defaultLang {
			tags = append(tags, language.Make(langCode))
		}
	}
	if _, ok := t.localizers[t.defaultLang]; !ok {
		return nil, fmt.Errorf("no messages for default language %q", t.defaultLang)
	}

	// Der erste Tag ist der Rückfall des Matchers
	t.tags = tags
	t.matcher = language.NewMatcher(tags)
	return t, nil
}

// Supported prüft, ob für die Sprache Meldungen vorliegen
func (t *Translator) Supported(lang string) bool {
	_, ok := t.localizers[lang]
	return ok
}

// Match wählt anhand eines Accept-Language-Headers die beste unterstützte Sprache
func (t *Translator) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.defaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLang
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.defaultLang
	}
	base, _ := t.tags[idx].Base()
	if t.Supported(base.String()) {
		return base.String()
	}
	return t.defaultLang
}

// Translate liefert die Meldung zu id. Fehlt sie, wird die ID selbst zurückgegeben.
func (t *Translator) Translate(lang, id string, data map[string]any) string {
	localizer, ok := t.localizers[lang]
	if !ok {
		localizer = t.localizers[t.defaultLang]
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Debugf("Missing translation for '%s' (%s): %v", id, lang, err)
		return id
	}
	return msg
}

// I18n bestimmt die Sprache der Anfrage: ?lang (wird in der Session
// gespeichert), dann Session, dann Accept-Language, dann Standardsprache.
// Benötigt die sessions-Middleware.
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && t.Supported(lang) {
			session.Set(sessionLanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Warnf("Failed to save language preference: %v", err)
			}
		} else if stored, ok := session.Get(sessionLanguageKey).(string); ok && t.Supported(stored) {
			lang = stored
		} else {
			lang = t.Match(c.GetHeader("Accept-Language"))
		}

		c.Set(contextLanguageKey, lang)
		c.Set(contextTranslator, t)
		c.Next()
	}
}

// Language liefert die für die Anfrage gewählte Sprache
func Language(c *gin.Context) string {
	return c.GetString(contextLanguageKey)
}

// T übersetzt id in die Sprache der Anfrage. Ohne I18n-Middleware wird id zurückgegeben.
func T(c *gin.Context, id string, data map[string]any) string {
	t, ok := c.Get(contextTranslator)
	if !ok {
		return id
	}
	return t.(*Translator).Translate(Language(c), id, data)
}
