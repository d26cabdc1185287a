package users

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/scott-ace-newton/translator-chat/auth"
	"github.com/scott-ace-newton/translator-chat/notification"
	"github.com/scott-ace-newton/translator-chat/persistence"
)

const (
	msgTemplate           = "{\"message\": %q}"
	invalidCredentialsMsg = "invalid username or password"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UsersHandler struct {
	store    persistence.Storer
	sessions *auth.Manager
	events   notification.Publisher
	limiter  func(http.Handler) http.Handler
}

//NewUsersHandler wires the account endpoints. limiter may be nil.
func NewUsersHandler(store persistence.Storer, sessions *auth.Manager, events notification.Publisher, limiter func(http.Handler) http.Handler) UsersHandler {
	if limiter == nil {
		limiter = func(next http.Handler) http.Handler { return next }
	}
	return UsersHandler{
		store:    store,
		sessions: sessions,
		events:   events,
		limiter:  limiter,
	}
}

func (h *UsersHandler) RegisterHandlers(router *mux.Router) {
	log.Info("registering account handlers")
	registerHandler := handlers.MethodHandler{
		"PUT": h.limiter(http.HandlerFunc(h.Register)),
	}
	loginHandler := handlers.MethodHandler{
		"POST": h.limiter(http.HandlerFunc(h.Login)),
	}
	logoutHandler := handlers.MethodHandler{
		"POST": http.HandlerFunc(h.Logout),
	}
	meHandler := handlers.MethodHandler{
		"GET": auth.RequireSession(http.HandlerFunc(h.CurrentSession)),
	}
	healthHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.IsHealthy),
	}

	router.Handle("/account/register", registerHandler)
	router.Handle("/account/login", loginHandler)
	router.Handle("/account/logout", logoutHandler)
	router.Handle("/account/me", meHandler)
	router.Handle("/__health", healthHandler)
}

func decodeCredentials(writer http.ResponseWriter, request *http.Request) (credentials, bool) {
	var c credentials
	if err := json.NewDecoder(request.Body).Decode(&c); err != nil {
		log.WithError(err).Error("could not decode request body")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return c, false
	}
	return c, true
}

func (h *UsersHandler) Register(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	c, ok := decodeCredentials(writer, request)
	if !ok {
		return
	}

	status, err := h.store.Register(c.Username, c.Password)
	switch status {
	case persistence.CREATED:
		h.events.Publish(notification.Event{Type: notification.UserCreatedEvent, Username: c.Username})
		writeMessage(writer, http.StatusCreated, "created account for user: "+c.Username)
	case persistence.ALREADY_EXISTS:
		writeMessage(writer, http.StatusConflict, fmt.Sprintf("username %s is already taken", c.Username))
	case persistence.INVALID_INPUT:
		writeMessage(writer, http.StatusBadRequest, "username must contain letters only and password must not be empty")
	default:
		log.WithError(err).WithField("username", c.Username).Error("registration failed")
		writeMessage(writer, http.StatusInternalServerError, "could not create account")
	}
}

func (h *UsersHandler) Login(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	c, ok := decodeCredentials(writer, request)
	if !ok {
		return
	}

	account, status, err := h.store.Authenticate(c.Username, c.Password)
	switch status {
	case persistence.AUTHENTICATED:
	case persistence.INVALID_CREDENTIALS:
		writeMessage(writer, http.StatusUnauthorized, invalidCredentialsMsg)
		return
	default:
		log.WithError(err).WithField("username", c.Username).Error("login failed")
		writeMessage(writer, http.StatusInternalServerError, "could not log in")
		return
	}

	token, sess, err := h.sessions.Login(c.Username, string(account.Role))
	if err != nil {
		log.WithError(err).WithField("username", c.Username).Error("could not start session")
		writeMessage(writer, http.StatusInternalServerError, "could not log in")
		return
	}
	auth.SetSessionCookie(writer, token, sess.ExpiresAt)
	h.events.Publish(notification.Event{Type: notification.UserLoggedInEvent, Username: c.Username})
	writer.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(writer).Encode(sess); err != nil {
		log.WithError(err).Error("could not encode returned payload")
	}
}

func (h *UsersHandler) Logout(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	if c, err := request.Cookie(auth.CookieName); err == nil {
		h.sessions.Logout(c.Value)
	}
	auth.ClearSessionCookie(writer)
	if sess.Username != "" {
		h.events.Publish(notification.Event{Type: notification.UserLoggedOutEvent, Username: sess.Username})
	}
	writeMessage(writer, http.StatusOK, "logged out")
}

func (h *UsersHandler) CurrentSession(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	writer.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(writer).Encode(sess); err != nil {
		log.WithError(err).Error("could not encode returned payload")
	}
}

func (h *UsersHandler) IsHealthy(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	if h.store.ActiveConnection() {
		writeMessage(writer, http.StatusOK, "app is healthy")
		return
	}
	writeMessage(writer, http.StatusServiceUnavailable, "app is unhealthy")
}

func writeMessage(writer http.ResponseWriter, status int, msg string) {
	writer.WriteHeader(status)
	fmt.Fprintln(writer, fmt.Sprintf(msgTemplate, msg))
}
