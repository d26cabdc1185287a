package chat

import (
	"time"

	"github.com/scott-ace-newton/translator-chat/notification"
	p "github.com/scott-ace-newton/translator-chat/persistence"
)

type appended struct {
	userA, userB, sender, body string
	at                         time.Time
}

type mockStore struct {
	expectedStatus   p.Status
	expectedErr      error
	users            []string
	partners         []string
	messages         []p.Message
	requestedLimit   int
	appendedMessages []appended
}

func (ms *mockStore) Register(string, string) (p.Status, error) {
	return ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) Authenticate(string, string) (p.UserAccount, p.Status, error) {
	return p.UserAccount{}, ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) AppendMessage(userA, userB, sender, body string, at time.Time) (p.Status, error) {
	ms.appendedMessages = append(ms.appendedMessages, appended{userA, userB, sender, body, at})
	return ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) UserExists(username string) (bool, error) {
	for _, u := range ms.users {
		if u == username {
			return true, nil
		}
	}
	return false, nil
}

func (ms *mockStore) ListUsers() ([]string, error) {
	return ms.users, ms.expectedErr
}

func (ms *mockStore) ListPartners(string) ([]string, error) {
	return ms.partners, ms.expectedErr
}

func (ms *mockStore) RecentMessages(_, _ string, limit int) ([]p.Message, error) {
	ms.requestedLimit = limit
	return ms.messages, ms.expectedErr
}

func (ms *mockStore) ActiveConnection() bool {
	return ms.expectedErr == nil
}

type mockPublisher struct {
	events []notification.Event
}

func (mp *mockPublisher) Publish(ev notification.Event) {
	mp.events = append(mp.events, ev)
}
