package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// I18nConfig configures the language selection middleware.
type I18nConfig struct {
	DefaultLanguage string
	Languages       []string
}

// I18n resolves the UI language for each request: an explicit ?lang=
// parameter wins and is remembered in the session, otherwise the session
// value applies, otherwise the default.
func I18n(config I18nConfig) gin.HandlerFunc {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}

	supported := make(map[string]bool, len(config.Languages))
	for _, l := range config.Languages {
		supported[l] = true
	}

	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && supported[lang] {
			session.Set("language", lang)
			session.Save()
		} else {
			sessionLang := session.Get("language")
			if s, ok := sessionLang.(string); ok {
				lang = s
			}
		}

		if lang == "" || !supported[lang] {
			lang = config.DefaultLanguage
		}

		c.Set("language", lang)
		c.Next()
	}
}

// Language reads the resolved language from the request context.
func Language(c *gin.Context) string {
	if lang, ok := c.Get("language"); ok {
		if s, ok := lang.(string); ok {
			return s
		}
	}
	return "en"
}
