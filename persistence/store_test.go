package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scott-ace-newton/translator-chat/auth"
)

var (
	t1 = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	t2 = time.Date(2025, 3, 14, 9, 27, 10, 0, time.UTC)
)

func init() {
	log.SetLevel(log.DebugLevel)
}

func newTestStore(t *testing.T, opts ...Option) (*RecordStore, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err, "could not open file backend")
	hasher := auth.NewArgon2Hasher(&argon2id.Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	return NewRecordStore(backend, hasher, opts...), dir
}

type failingBackend struct {
	readErr  error
	writeErr error
	data     []byte
}

func (f *failingBackend) Read(Kind) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.data, nil
}

func (f *failingBackend) Write(Kind, []byte) error { return f.writeErr }
func (f *failingBackend) Ping() error              { return f.readErr }
func (f *failingBackend) Close() error             { return nil }

func TestRecordStore_RegisterAndAuthenticate(t *testing.T) {
	store, _ := newTestStore(t)

	status, err := store.Register("alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, CREATED, status, "could not register alice")

	status, err = store.Register("alice", "pw2")
	require.NoError(t, err)
	assert.Equal(t, ALREADY_EXISTS, status, "registered the same username twice")

	account, status, err := store.Authenticate("alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, AUTHENTICATED, status)
	assert.Equal(t, RoleUser, account.Role)
	assert.NotEqual(t, "pw1", account.PasswordHash, "password stored in plain text")

	_, status, err = store.Authenticate("alice", "wrongpw")
	require.NoError(t, err)
	assert.Equal(t, INVALID_CREDENTIALS, status)

	_, status, err = store.Authenticate("alice", "pw2")
	require.NoError(t, err)
	assert.Equal(t, INVALID_CREDENTIALS, status, "second registration must not have replaced the password")

	_, status, err = store.Authenticate("mallory", "pw1")
	require.NoError(t, err)
	assert.Equal(t, INVALID_CREDENTIALS, status, "unknown user must look like a wrong password")
}

func TestRecordStore_RegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     Status
	}{
		{"empty username", "", "pw", INVALID_INPUT},
		{"digits in username", "alice1", "pw", INVALID_INPUT},
		{"space in username", "al ice", "pw", INVALID_INPUT},
		{"separator in username", "al|ice", "pw", INVALID_INPUT},
		{"empty password", "alice", "", INVALID_INPUT},
		{"letters only", "Alice", "pw", CREATED},
		{"unicode letters", "Élodie", "pw", CREATED},
	}

	store, _ := newTestStore(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, err := store.Register(test.username, test.password)
			assert.NoError(t, err)
			assert.Equal(t, test.want, status)
		})
	}

	accounts, err := store.LoadAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 2, "rejected registrations must not change the document")
}

func TestRecordStore_UsernamesAreCaseSensitive(t *testing.T) {
	store, _ := newTestStore(t)
	status, _ := store.Register("alice", "pw1")
	assert.Equal(t, CREATED, status)
	status, _ = store.Register("Alice", "pw2")
	assert.Equal(t, CREATED, status)
}

func TestRecordStore_AdminRole(t *testing.T) {
	store, _ := newTestStore(t, WithAdmins("root", " "))
	_, err := store.Register("root", "pw")
	require.NoError(t, err)
	_, err = store.Register("bob", "pw")
	require.NoError(t, err)

	accounts, err := store.LoadAccounts()
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, accounts["root"].Role)
	assert.Equal(t, RoleUser, accounts["bob"].Role)
}

func TestPairKey(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"alice", "bob", "alice|bob"},
		{"bob", "alice", "alice|bob"},
		{"Bob", "alice", "Bob|alice"},
		{"zed", "zed", "zed|zed"},
	}
	for _, test := range tests {
		t.Run(test.a+"_"+test.b, func(t *testing.T) {
			assert.Equal(t, test.want, PairKey(test.a, test.b))
			assert.Equal(t, PairKey(test.a, test.b), PairKey(test.b, test.a))
		})
	}

	a, b, ok := SplitPairKey("alice|bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)
	_, _, ok = SplitPairKey("alice")
	assert.False(t, ok)
}

func TestRecordStore_AppendAndRecentMessages(t *testing.T) {
	store, _ := newTestStore(t)

	status, err := store.AppendMessage("alice", "bob", "alice", "hi", t1)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, status)
	status, err = store.AppendMessage("alice", "bob", "bob", "hey", t2)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, status)

	msgs, err := store.RecentMessages("bob", "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Sender: "alice", Message: "hi", Time: "2025-03-14 09:26"},
		{Sender: "bob", Message: "hey", Time: "2025-03-14 09:27"},
	}, msgs)

	conversations, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Len(t, conversations, 1, "both directions must share one log")
	assert.Contains(t, conversations, "alice|bob")
}

func TestRecordStore_RecentMessagesLimit(t *testing.T) {
	store, _ := newTestStore(t)
	for i := 0; i < 60; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		status, err := store.AppendMessage("bob", "alice", sender, fmt.Sprintf("msg %d", i), t1)
		require.NoError(t, err)
		require.Equal(t, APPENDED, status)
	}

	tests := []struct {
		name      string
		limit     int
		wantLen   int
		wantFirst string
	}{
		{"default limit", 0, DefaultHistoryLimit, "msg 10"},
		{"explicit limit", 50, 50, "msg 10"},
		{"small limit", 3, 3, "msg 57"},
		{"limit above log length", 100, 60, "msg 0"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msgs, err := store.RecentMessages("alice", "bob", test.limit)
			require.NoError(t, err)
			require.Len(t, msgs, test.wantLen)
			assert.Equal(t, test.wantFirst, msgs[0].Message)
			assert.Equal(t, "msg 59", msgs[len(msgs)-1].Message)
			for i := 1; i < len(msgs); i++ {
				var prev, cur int
				fmt.Sscanf(msgs[i-1].Message, "msg %d", &prev)
				fmt.Sscanf(msgs[i].Message, "msg %d", &cur)
				assert.Equal(t, prev+1, cur, "messages reordered")
			}
		})
	}
}

func TestRecordStore_RecentMessagesShortLog(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.AppendMessage("alice", "bob", "alice", "only one", t1)
	require.NoError(t, err)

	msgs, err := store.RecentMessages("alice", "bob", 50)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Sender: "alice", Message: "only one", Time: "2025-03-14 09:26"}}, msgs)

	msgs, err = store.RecentMessages("alice", "carol", 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRecordStore_AppendMessageValidation(t *testing.T) {
	tests := []struct {
		name               string
		a, b, sender, body string
	}{
		{"empty body", "alice", "bob", "alice", ""},
		{"blank body", "alice", "bob", "alice", "  \n\t"},
		{"sender not a participant", "alice", "bob", "carol", "hi"},
		{"same user twice", "alice", "alice", "alice", "hi"},
		{"invalid username", "alice", "b0b", "alice", "hi"},
	}

	store, _ := newTestStore(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, err := store.AppendMessage(test.a, test.b, test.sender, test.body, t1)
			assert.NoError(t, err)
			assert.Equal(t, INVALID_INPUT, status)
		})
	}

	conversations, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestRecordStore_ListPartners(t *testing.T) {
	store, _ := newTestStore(t)
	for _, pair := range [][2]string{{"alice", "bob"}, {"carol", "alice"}, {"bob", "carol"}, {"alice", "bob"}} {
		_, err := store.AppendMessage(pair[0], pair[1], pair[0], "hello", t1)
		require.NoError(t, err)
	}

	partners, err := store.ListPartners("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, partners)

	partners, err = store.ListPartners("dave")
	require.NoError(t, err)
	assert.Empty(t, partners)
}

func TestRecordStore_UsersAndExistence(t *testing.T) {
	store, _ := newTestStore(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := store.Register(name, "pw")
		require.NoError(t, err)
	}
	names, err := store.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	ok, err := store.UserExists("bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.UserExists("dave")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordStore_LoadIsIdempotentAndSaveRoundTrips(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.LoadAccounts()
	require.NoError(t, err)
	second, err := store.LoadAccounts()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Empty(t, first)

	accounts := Accounts{
		"alice": {PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA", Role: RoleUser},
		"root":  {PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA", Role: RoleAdmin},
	}
	require.NoError(t, store.SaveAccounts(accounts))
	loaded, err := store.LoadAccounts()
	require.NoError(t, err)
	assert.Equal(t, accounts, loaded)

	conversations := Conversations{
		"alice|bob": {
			{Sender: "alice", Message: "hi", Time: "2025-03-14 09:26"},
			{Sender: "bob", Message: "hey", Time: "2025-03-14 09:27"},
		},
	}
	require.NoError(t, store.SaveConversations(conversations))
	again, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Equal(t, conversations, again)
	again2, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Equal(t, again, again2)
}

func TestRecordStore_MissingDocumentIsInitialised(t *testing.T) {
	store, dir := newTestStore(t)

	conversations, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Empty(t, conversations)

	data, err := os.ReadFile(filepath.Join(dir, "conversations.json"))
	require.NoError(t, err, "empty document was not written on first load")
	assert.JSONEq(t, "{}", string(data))
}

func TestRecordStore_CorruptDocuments(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		body string
	}{
		{"not json", AccountsKind, "{not json"},
		{"empty file", AccountsKind, ""},
		{"null document", AccountsKind, "null"},
		{"list instead of mapping", AccountsKind, `[{"username": "alice"}]`},
		{"unknown role", AccountsKind, `{"alice": {"password_hash": "x", "role": "owner"}}`},
		{"missing hash", AccountsKind, `{"alice": {"role": "user"}}`},
		{"unknown field", AccountsKind, `{"alice": {"password_hash": "x", "role": "user", "password": "pw"}}`},
		{"key not canonical", ConversationsKind, `{"bob|alice": [{"sender": "bob", "message": "hi", "time": "2025-03-14 09:26"}]}`},
		{"three participants", ConversationsKind, `{"alice|bob|carol": []}`},
		{"sender not a participant", ConversationsKind, `{"alice|bob": [{"sender": "carol", "message": "hi", "time": "2025-03-14 09:26"}]}`},
		{"trailing closing brace", AccountsKind, "{}}"},
		{"trailing closing bracket", ConversationsKind, "{}]"},
		{"second document", AccountsKind, "{} {}"},
		{"empty message", ConversationsKind, `{"alice|bob": [{"sender": "bob", "message": "", "time": "2025-03-14 09:26"}]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store, dir := newTestStore(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, string(test.kind)+".json"), []byte(test.body), 0o644))

			var err error
			if test.kind == AccountsKind {
				_, err = store.LoadAccounts()
			} else {
				_, err = store.LoadConversations()
			}
			require.Error(t, err, "corrupt document was accepted")
			var se *StorageError
			assert.True(t, errors.As(err, &se), "error is not a StorageError: %v", err)
			assert.Equal(t, test.kind, se.Kind)
			assert.True(t, errors.Is(err, ErrCorruptDocument))

			data, readErr := os.ReadFile(filepath.Join(dir, string(test.kind)+".json"))
			require.NoError(t, readErr)
			assert.Equal(t, test.body, string(data), "corrupt document must not be overwritten")
		})
	}
}

func TestRecordStore_TrailingWhitespaceIsAccepted(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.json"), []byte("{}\n\n  \t"), 0o644))
	accounts, err := store.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRecordStore_SaveRejectsInvalidDocuments(t *testing.T) {
	store, dir := newTestStore(t)
	status, err := store.Register("alice", "pw1")
	require.NoError(t, err)
	require.Equal(t, CREATED, status)
	before, err := os.ReadFile(filepath.Join(dir, "accounts.json"))
	require.NoError(t, err)

	accountTests := []struct {
		name     string
		accounts Accounts
	}{
		{"unknown role and no hash", Accounts{"alice": {PasswordHash: "", Role: "owner"}}},
		{"empty username", Accounts{"": {PasswordHash: "h", Role: RoleUser}}},
		{"missing role", Accounts{"bob": {PasswordHash: "h"}}},
	}
	for _, test := range accountTests {
		t.Run(test.name, func(t *testing.T) {
			err := store.SaveAccounts(test.accounts)
			require.Error(t, err)
			var se *StorageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "save", se.Op)
			assert.True(t, errors.Is(err, ErrInvalidDocument))
		})
	}

	after, err := os.ReadFile(filepath.Join(dir, "accounts.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected save must leave the document untouched")

	status, err = store.Register("bob", "pw2")
	require.NoError(t, err)
	assert.Equal(t, CREATED, status, "store must stay usable after a rejected save")

	conversationTests := []struct {
		name          string
		conversations Conversations
	}{
		{"key not canonical", Conversations{"bob|alice": {{Sender: "bob", Message: "hi", Time: "2025-03-14 09:26"}}}},
		{"sender not a participant", Conversations{"alice|bob": {{Sender: "carol", Message: "hi", Time: "2025-03-14 09:26"}}}},
		{"blank message", Conversations{"alice|bob": {{Sender: "bob", Message: " ", Time: "2025-03-14 09:26"}}}},
	}
	for _, test := range conversationTests {
		t.Run(test.name, func(t *testing.T) {
			err := store.SaveConversations(test.conversations)
			assert.True(t, errors.Is(err, ErrInvalidDocument), "got %v", err)
		})
	}
	conversations, err := store.LoadConversations()
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestRecordStore_CorruptAccountsFailOperations(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.json"), []byte("garbage"), 0o644))

	status, err := store.Register("alice", "pw")
	assert.Equal(t, BACKEND_ERROR, status)
	assert.Error(t, err)

	_, status, err = store.Authenticate("alice", "pw")
	assert.Equal(t, BACKEND_ERROR, status)
	assert.Error(t, err)
}

func TestRecordStore_BackendFailuresAreSurfaced(t *testing.T) {
	readFailure := NewRecordStore(&failingBackend{readErr: errors.New("disk gone")}, auth.NewArgon2Hasher(nil))
	status, err := readFailure.AppendMessage("alice", "bob", "alice", "hi", t1)
	assert.Equal(t, BACKEND_ERROR, status)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "load", se.Op)
	assert.False(t, readFailure.ActiveConnection())

	_, err = readFailure.ListPartners("alice")
	assert.Error(t, err)
	_, err = readFailure.RecentMessages("alice", "bob", 10)
	assert.Error(t, err)

	writeFailure := NewRecordStore(&failingBackend{data: []byte("{}"), writeErr: errors.New("read-only")}, auth.NewArgon2Hasher(nil))
	status, err = writeFailure.AppendMessage("alice", "bob", "alice", "hi", t1)
	assert.Equal(t, BACKEND_ERROR, status)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save", se.Op)
	assert.Equal(t, ConversationsKind, se.Kind)
}

func TestRecordStore_ConcurrentAppendsLoseNothing(t *testing.T) {
	store, _ := newTestStore(t)
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := store.AppendMessage("alice", "bob", "alice", fmt.Sprintf("msg %d", i), t1)
			assert.NoError(t, err)
			assert.Equal(t, APPENDED, status)
		}(i)
	}
	wg.Wait()

	msgs, err := store.RecentMessages("alice", "bob", 100)
	require.NoError(t, err)
	assert.Len(t, msgs, writers)
}

func TestRecordStore_ConcurrentRegistrationsOfOneName(t *testing.T) {
	store, _ := newTestStore(t)
	const attempts = 8

	statuses := make(chan Status, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := store.Register("alice", fmt.Sprintf("pw%d", i))
			assert.NoError(t, err)
			statuses <- status
		}(i)
	}
	wg.Wait()
	close(statuses)

	created := 0
	for s := range statuses {
		if s == CREATED {
			created++
		} else {
			assert.Equal(t, ALREADY_EXISTS, s)
		}
	}
	assert.Equal(t, 1, created)
}
