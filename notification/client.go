package notification

import (
	log "github.com/sirupsen/logrus"
)

const (
	UserCreatedEvent   = "USER_CREATED"
	UserLoggedInEvent  = "USER_LOGGED_IN"
	UserLoggedOutEvent = "USER_LOGGED_OUT"
	MessageSentEvent   = "MESSAGE_SENT"
)

//Event describes something a user did
type Event struct {
	Type     string
	Username string
	Partner  string
}

//Publisher is implemented by EventClient. Useful for mocking
type Publisher interface {
	Publish(Event)
}

//EventClient writes account and chat events to the event log
type EventClient struct {
	logger *log.Logger
}

//NewEventClient returns an event client logging through logger, or the standard logger when nil
func NewEventClient(logger *log.Logger) *EventClient {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EventClient{logger: logger}
}

//Publish records the event. It never fails the request that caused it.
func (ec *EventClient) Publish(ev Event) {
	entry := ec.logger.WithFields(log.Fields{
		"event":    ev.Type,
		"username": ev.Username,
	})
	if ev.Partner != "" {
		entry = entry.WithField("partner", ev.Partner)
	}
	entry.Info("event published")
}
