package users

import (
	"time"

	"github.com/scott-ace-newton/translator-chat/notification"
	p "github.com/scott-ace-newton/translator-chat/persistence"
)

type mockStore struct {
	expectedStatus  p.Status
	expectedAccount p.UserAccount
	expectedErr     error
	healthy         bool
}

func (ms *mockStore) Register(string, string) (p.Status, error) {
	return ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) Authenticate(string, string) (p.UserAccount, p.Status, error) {
	return ms.expectedAccount, ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) AppendMessage(string, string, string, string, time.Time) (p.Status, error) {
	return ms.expectedStatus, ms.expectedErr
}

func (ms *mockStore) UserExists(string) (bool, error) {
	return false, ms.expectedErr
}

func (ms *mockStore) ListUsers() ([]string, error) {
	return nil, ms.expectedErr
}

func (ms *mockStore) ListPartners(string) ([]string, error) {
	return nil, ms.expectedErr
}

func (ms *mockStore) RecentMessages(string, string, int) ([]p.Message, error) {
	return nil, ms.expectedErr
}

func (ms *mockStore) ActiveConnection() bool {
	return ms.healthy
}

type mockPublisher struct {
	events []notification.Event
}

func (mp *mockPublisher) Publish(ev notification.Event) {
	mp.events = append(mp.events, ev)
}
