package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const sessionKey contextKey = "session"

//CookieName is the cookie the session token travels in.
const CookieName = "session"

const msgTemplate = "{\"message\": \"%s\"}"

type resolved struct {
	session Session
	state   State
}

//Middleware resolves the session cookie on every request and stores the
//result in the request context. It never rejects a request.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := resolved{state: Anonymous}
		if c, err := r.Cookie(CookieName); err == nil {
			res.session, res.state = m.Resolve(c.Value)
			if res.state == Expired {
				ClearSessionCookie(w)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, res)))
	})
}

//FromContext returns the session resolved by Middleware.
func FromContext(ctx context.Context) (Session, State) {
	res, ok := ctx.Value(sessionKey).(resolved)
	if !ok {
		return Session{}, Anonymous
	}
	return res.session, res.state
}

//RequireSession only lets Authenticated requests through.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, state := FromContext(r.Context())
		switch state {
		case Authenticated:
			next.ServeHTTP(w, r)
			return
		case Expired:
			writeUnauthorized(w, "session expired, please log in again")
		default:
			writeUnauthorized(w, "please log in first")
		}
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintln(w, fmt.Sprintf(msgTemplate, msg))
}

func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
