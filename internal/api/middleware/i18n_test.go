package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	translator, err := NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.Use(sessions.Sessions("photo_transform", cookie.NewStore([]byte("test-secret"))))
	r.Use(I18n(translator))
	r.GET("/msg", func(c *gin.Context) {
		c.String(http.StatusOK, Language(c)+"|"+T(c, "no_face_detected", nil))
	})
	return r
}

func TestTranslator_Translate(t *testing.T) {
	tr, err := NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}

	if got := tr.Translate("de", "prompt_too_long", map[string]any{"Max": 200}); got != "Der Prompt ist länger als 200 Zeichen." {
		t.Errorf("unexpected german message %q", got)
	}
	if got := tr.Translate("fr", "not_found", nil); got != "Transformation not found." {
		t.Errorf("expected fallback to english, got %q", got)
	}
	if got := tr.Translate("en", "does_not_exist", nil); got != "does_not_exist" {
		t.Errorf("expected message id for unknown message, got %q", got)
	}
}

func TestTranslator_Match(t *testing.T) {
	tr, err := NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"":                        "en",
		"de-DE,de;q=0.9,en;q=0.8": "de",
		"fr-FR,fr;q=0.9":          "en",
		"en-US,en;q=0.9,de;q=0.5": "en",
		"*":                       "en",
	}
	for header, want := range tests {
		if got := tr.Match(header); got != want {
			t.Errorf("Match(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestI18n_LanguageSelection(t *testing.T) {
	r := newTestRouter(t)

	// Accept-Language
	req := httptest.NewRequest(http.MethodGet, "/msg", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "de|Im Bild wurde kein Gesicht erkannt. Bitte lade ein deutliches Foto mit einem Gesicht hoch." {
		t.Errorf("unexpected body %q", w.Body.String())
	}

	// ?lang wird in der Session gespeichert und gewinnt gegen den Header
	req = httptest.NewRequest(http.MethodGet, "/msg?lang=en", nil)
	req.Header.Set("Accept-Language", "de")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Body.String(); got[:3] != "en|" {
		t.Errorf("query parameter ignored: %q", got)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/msg", nil)
	req.Header.Set("Accept-Language", "de")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Body.String(); got[:3] != "en|" {
		t.Errorf("session preference ignored: %q", got)
	}
}
