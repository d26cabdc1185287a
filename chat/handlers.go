//Package chat serves the two-party conversations between registered users.
package chat

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/microcosm-cc/bluemonday"
	log "github.com/sirupsen/logrus"

	"github.com/scott-ace-newton/translator-chat/auth"
	"github.com/scott-ace-newton/translator-chat/notification"
	"github.com/scott-ace-newton/translator-chat/persistence"
)

const msgTemplate = "{\"message\": %q}"

type messageRequest struct {
	Message string `json:"message"`
}

type ChatHandler struct {
	store        persistence.Storer
	events       notification.Publisher
	policy       *bluemonday.Policy
	historyLimit int
	now          func() time.Time
}

func NewChatHandler(store persistence.Storer, events notification.Publisher, historyLimit int) ChatHandler {
	if historyLimit <= 0 {
		historyLimit = persistence.DefaultHistoryLimit
	}
	return ChatHandler{
		store:        store,
		events:       events,
		policy:       bluemonday.StrictPolicy(),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

func (h *ChatHandler) RegisterHandlers(router *mux.Router) {
	log.Info("registering chat handlers")
	usersHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.ListUsers),
	}
	partnersHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.ListPartners),
	}
	messagesHandler := handlers.MethodHandler{
		"GET":  http.HandlerFunc(h.RecentMessages),
		"POST": http.HandlerFunc(h.SendMessage),
	}

	router.Handle("/chat/users", auth.RequireSession(usersHandler))
	router.Handle("/chat/partners", auth.RequireSession(partnersHandler))
	router.Handle("/chat/messages/{partner}", auth.RequireSession(messagesHandler))
}

func (h *ChatHandler) ListUsers(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	names, err := h.store.ListUsers()
	if err != nil {
		writeMessage(writer, http.StatusInternalServerError, "could not load users")
		return
	}
	others := make([]string, 0, len(names))
	for _, n := range names {
		if n != sess.Username {
			others = append(others, n)
		}
	}
	writeJSON(writer, others)
}

func (h *ChatHandler) ListPartners(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	partners, err := h.store.ListPartners(sess.Username)
	if err != nil {
		writeMessage(writer, http.StatusInternalServerError, "could not load conversations")
		return
	}
	writeJSON(writer, partners)
}

func (h *ChatHandler) RecentMessages(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	partner := mux.Vars(request)["partner"]

	limit := h.historyLimit
	if raw := request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.WithField("limit", raw).Info("invalid history limit")
			writeMessage(writer, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	msgs, err := h.store.RecentMessages(sess.Username, partner, limit)
	if err != nil {
		writeMessage(writer, http.StatusInternalServerError, "could not load messages")
		return
	}
	writeJSON(writer, msgs)
}

func (h *ChatHandler) SendMessage(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	sess, _ := auth.FromContext(request.Context())
	partner := mux.Vars(request)["partner"]

	var req messageRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		log.WithError(err).Error("could not decode request body")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return
	}

	exists, err := h.store.UserExists(partner)
	if err != nil {
		writeMessage(writer, http.StatusInternalServerError, "could not send message")
		return
	}
	if !exists {
		writeMessage(writer, http.StatusNotFound, "no such user: "+partner)
		return
	}

	body := plainText(h.policy, req.Message)
	status, err := h.store.AppendMessage(sess.Username, partner, sess.Username, body, h.now())
	switch status {
	case persistence.APPENDED:
		h.events.Publish(notification.Event{
			Type:     notification.MessageSentEvent,
			Username: sess.Username,
			Partner:  partner,
		})
		writeMessage(writer, http.StatusCreated, "message sent")
	case persistence.INVALID_INPUT:
		writeMessage(writer, http.StatusBadRequest, "message must not be empty and must go to another user")
	default:
		log.WithError(err).WithField("partner", partner).Error("could not append message")
		writeMessage(writer, http.StatusInternalServerError, "could not send message")
	}
}

//plainText drops markup but keeps the characters the user typed. The strict policy
//escapes what it keeps, and bodies are stored as plain text, not HTML.
func plainText(policy *bluemonday.Policy, s string) string {
	return html.UnescapeString(policy.Sanitize(s))
}

func writeJSON(writer http.ResponseWriter, v interface{}) {
	writer.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		log.WithError(err).Error("could not encode returned payload")
	}
}

func writeMessage(writer http.ResponseWriter, status int, msg string) {
	writer.WriteHeader(status)
	fmt.Fprintln(writer, fmt.Sprintf(msgTemplate, msg))
}
