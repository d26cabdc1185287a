package persistence

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

//Status abstracts business logic layer from http status codes
//Status must be exported for handler tests
type Status int

const (
	CREATED Status = iota
	ALREADY_EXISTS
	BACKEND_ERROR
	NOT_FOUND
	OK
	INVALID_INPUT
	INVALID_CREDENTIALS
	AUTHENTICATED
	APPENDED
)

var statusNames = map[Status]string{
	CREATED:             "CREATED",
	ALREADY_EXISTS:      "ALREADY_EXISTS",
	BACKEND_ERROR:       "BACKEND_ERROR",
	NOT_FOUND:           "NOT_FOUND",
	OK:                  "OK",
	INVALID_INPUT:       "INVALID_INPUT",
	INVALID_CREDENTIALS: "INVALID_CREDENTIALS",
	AUTHENTICATED:       "AUTHENTICATED",
	APPENDED:            "APPENDED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

//PasswordHasher is the one-way function passwords are stored with
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) (bool, error)
}

//Storer provides an interface of RecordStore functions. Useful for mocking
type Storer interface {
	Register(username, password string) (Status, error)
	Authenticate(username, password string) (UserAccount, Status, error)
	AppendMessage(userA, userB, sender, body string, at time.Time) (Status, error)
	UserExists(username string) (bool, error)
	ListUsers() ([]string, error)
	ListPartners(username string) ([]string, error)
	RecentMessages(userA, userB string, limit int) ([]Message, error)
	ActiveConnection() bool
}

//RecordStore owns the accounts and conversations documents. Every operation reloads the whole
//document, and load-mutate-save sequences hold the lock of the document kind they touch.
type RecordStore struct {
	backend Backend
	hasher  PasswordHasher
	admins  map[string]bool

	accountsMu      sync.Mutex
	conversationsMu sync.Mutex
}

//Option configures a RecordStore
type Option func(*RecordStore)

//WithAdmins makes the named users register with the admin role
func WithAdmins(usernames ...string) Option {
	return func(s *RecordStore) {
		for _, u := range usernames {
			if u = strings.TrimSpace(u); u != "" {
				s.admins[u] = true
			}
		}
	}
}

//NewRecordStore returns a record store on top of the given backend
func NewRecordStore(backend Backend, hasher PasswordHasher, opts ...Option) *RecordStore {
	s := &RecordStore{
		backend: backend,
		hasher:  hasher,
		admins:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

//LoadAccounts reads and validates the accounts document
func (s *RecordStore) LoadAccounts() (Accounts, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	return s.loadAccounts()
}

//SaveAccounts overwrites the accounts document
func (s *RecordStore) SaveAccounts(accounts Accounts) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	return s.saveAccounts(accounts)
}

//LoadConversations reads and validates the conversations document
func (s *RecordStore) LoadConversations() (Conversations, error) {
	s.conversationsMu.Lock()
	defer s.conversationsMu.Unlock()
	return s.loadConversations()
}

//SaveConversations overwrites the conversations document
func (s *RecordStore) SaveConversations(conversations Conversations) error {
	s.conversationsMu.Lock()
	defer s.conversationsMu.Unlock()
	return s.saveConversations(conversations)
}

func (s *RecordStore) loadAccounts() (Accounts, error) {
	data, err := s.backend.Read(AccountsKind)
	if err != nil {
		return nil, storageErr(AccountsKind, "load", err)
	}
	accounts, err := decodeAccounts(data)
	if err != nil {
		return nil, storageErr(AccountsKind, "load", err)
	}
	return accounts, nil
}

func (s *RecordStore) saveAccounts(accounts Accounts) error {
	if accounts == nil {
		accounts = Accounts{}
	}
	if err := validateAccounts(accounts); err != nil {
		log.WithError(err).Error("refusing to save invalid accounts document")
		return storageErr(AccountsKind, "save", err)
	}
	data, err := encodeDocument(accounts)
	if err != nil {
		return storageErr(AccountsKind, "save", err)
	}
	return storageErr(AccountsKind, "save", s.backend.Write(AccountsKind, data))
}

func (s *RecordStore) loadConversations() (Conversations, error) {
	data, err := s.backend.Read(ConversationsKind)
	if err != nil {
		return nil, storageErr(ConversationsKind, "load", err)
	}
	conversations, err := decodeConversations(data)
	if err != nil {
		return nil, storageErr(ConversationsKind, "load", err)
	}
	return conversations, nil
}

func (s *RecordStore) saveConversations(conversations Conversations) error {
	if conversations == nil {
		conversations = Conversations{}
	}
	if err := validateConversations(conversations); err != nil {
		log.WithError(err).Error("refusing to save invalid conversations document")
		return storageErr(ConversationsKind, "save", err)
	}
	data, err := encodeDocument(conversations)
	if err != nil {
		return storageErr(ConversationsKind, "save", err)
	}
	return storageErr(ConversationsKind, "save", s.backend.Write(ConversationsKind, data))
}

//Register will attempt to add a new account with a hashed password and the default role
func (s *RecordStore) Register(username, password string) (Status, error) {
	if !ValidUsername(username) {
		log.WithField("username", username).Info("rejected registration: username must be non-empty and alphabetic")
		return INVALID_INPUT, nil
	}
	if password == "" {
		log.WithField("username", username).Info("rejected registration: empty password")
		return INVALID_INPUT, nil
	}

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not load accounts")
		return BACKEND_ERROR, err
	}
	if _, ok := accounts[username]; ok {
		log.WithField("username", username).Info("username is already taken")
		return ALREADY_EXISTS, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not hash password")
		return BACKEND_ERROR, fmt.Errorf("hash password: %w", err)
	}
	role := RoleUser
	if s.admins[username] {
		role = RoleAdmin
	}
	accounts[username] = UserAccount{PasswordHash: hash, Role: role}

	if err := s.saveAccounts(accounts); err != nil {
		log.WithError(err).WithField("username", username).Error("could not save accounts")
		return BACKEND_ERROR, err
	}
	log.WithField("username", username).WithField("role", role).Info("created account")
	return CREATED, nil
}

//Authenticate checks the password against the stored hash. Unknown users and wrong passwords give the same status.
func (s *RecordStore) Authenticate(username, password string) (UserAccount, Status, error) {
	accounts, err := s.LoadAccounts()
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not load accounts")
		return UserAccount{}, BACKEND_ERROR, err
	}
	account, ok := accounts[username]
	if !ok {
		log.WithField("username", username).Debug("authentication failed: unknown user")
		return UserAccount{}, INVALID_CREDENTIALS, nil
	}
	match, err := s.hasher.Compare(password, account.PasswordHash)
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not compare password hash, it may be corrupted")
		return UserAccount{}, BACKEND_ERROR, fmt.Errorf("compare password: %w", err)
	}
	if !match {
		log.WithField("username", username).Debug("authentication failed: wrong password")
		return UserAccount{}, INVALID_CREDENTIALS, nil
	}
	return account, AUTHENTICATED, nil
}

//AppendMessage adds a message to the conversation between userA and userB, creating the log if needed
func (s *RecordStore) AppendMessage(userA, userB, sender, body string, at time.Time) (Status, error) {
	fields := log.Fields{"userA": userA, "userB": userB, "sender": sender}
	switch {
	case !ValidUsername(userA) || !ValidUsername(userB):
		log.WithFields(fields).Info("rejected message: invalid participant username")
		return INVALID_INPUT, nil
	case userA == userB:
		log.WithFields(fields).Info("rejected message: a conversation needs two different users")
		return INVALID_INPUT, nil
	case sender != userA && sender != userB:
		log.WithFields(fields).Info("rejected message: sender is not a participant")
		return INVALID_INPUT, nil
	case strings.TrimSpace(body) == "":
		log.WithFields(fields).Info("rejected message: empty body")
		return INVALID_INPUT, nil
	}

	s.conversationsMu.Lock()
	defer s.conversationsMu.Unlock()

	conversations, err := s.loadConversations()
	if err != nil {
		log.WithError(err).WithFields(fields).Error("could not load conversations")
		return BACKEND_ERROR, err
	}
	key := PairKey(userA, userB)
	conversations[key] = append(conversations[key], NewMessage(sender, body, at))

	if err := s.saveConversations(conversations); err != nil {
		log.WithError(err).WithFields(fields).Error("could not save conversations")
		return BACKEND_ERROR, err
	}
	log.WithFields(fields).Debugf("appended message to %s", key)
	return APPENDED, nil
}

//UserExists reports whether an account is registered under username
func (s *RecordStore) UserExists(username string) (bool, error) {
	accounts, err := s.LoadAccounts()
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not load accounts")
		return false, err
	}
	_, ok := accounts[username]
	return ok, nil
}

//ListUsers returns every registered username, sorted
func (s *RecordStore) ListUsers() ([]string, error) {
	accounts, err := s.LoadAccounts()
	if err != nil {
		log.WithError(err).Error("could not load accounts")
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

//ListPartners returns, sorted, every user that shares a conversation with username
func (s *RecordStore) ListPartners(username string) ([]string, error) {
	conversations, err := s.LoadConversations()
	if err != nil {
		log.WithError(err).WithField("username", username).Error("could not load conversations")
		return nil, err
	}
	seen := make(map[string]bool)
	for key := range conversations {
		userA, userB, ok := SplitPairKey(key)
		if !ok {
			continue
		}
		switch username {
		case userA:
			seen[userB] = true
		case userB:
			seen[userA] = true
		}
	}
	delete(seen, username)

	partners := make([]string, 0, len(seen))
	for p := range seen {
		partners = append(partners, p)
	}
	sort.Strings(partners)
	return partners, nil
}

//RecentMessages returns the last limit messages between userA and userB in the order they were appended
func (s *RecordStore) RecentMessages(userA, userB string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	conversations, err := s.LoadConversations()
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"userA": userA, "userB": userB}).Error("could not load conversations")
		return nil, err
	}
	msgs := conversations[PairKey(userA, userB)]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

//ActiveConnection will check the backing medium is still reachable
func (s *RecordStore) ActiveConnection() bool {
	if err := s.backend.Ping(); err != nil {
		log.WithError(err).Error("could not reach record store backend")
		return false
	}
	return true
}

//Close releases the backend
func (s *RecordStore) Close() error {
	return s.backend.Close()
}
