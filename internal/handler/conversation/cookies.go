package conversation

import (
	"net/http"
	"time"
)

const (
	// personaCookieName stores the last-used persona id across visits.
	personaCookieName = "parley_persona"
	personaCookieAge  = 30 * 24 * time.Hour
)

// setPersonaCookie remembers the active persona. Best effort: a client that
// rejects the cookie simply falls back to the catalog default next time.
func setPersonaCookie(w http.ResponseWriter, personaID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     personaCookieName,
		Value:    personaID,
		Path:     "/",
		MaxAge:   int(personaCookieAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// readPersonaCookie returns the remembered persona id, empty when absent.
func readPersonaCookie(r *http.Request) string {
	cookie, err := r.Cookie(personaCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
