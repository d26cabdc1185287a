package persistence

import (
	"strings"
	"time"
)

//Kind names one of the whole documents owned by the record store
type Kind string

const (
	AccountsKind      Kind = "accounts"
	ConversationsKind Kind = "conversations"
)

//Role of a registered account
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	//PairSeparator joins the two sorted usernames of a conversation key
	PairSeparator = "|"
	//TimeLayout is the minute resolution format messages are stamped with
	TimeLayout = "2006-01-02 15:04"
	//DefaultHistoryLimit is how many messages RecentMessages returns when no limit is given
	DefaultHistoryLimit = 50
)

type UserAccount struct {
	PasswordHash string `json:"password_hash"`
	Role         Role   `json:"role"`
}

type Message struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

//Accounts is the accounts document keyed by username
type Accounts map[string]UserAccount

//Conversations is the conversations document keyed by canonical pair key
type Conversations map[string][]Message

//NewMessage stamps a message body with the sender and minute resolution time
func NewMessage(sender, body string, at time.Time) Message {
	return Message{
		Sender:  sender,
		Message: body,
		Time:    at.Format(TimeLayout),
	}
}

//PairKey returns the conversation key for two users. It is the same whichever user is given first.
func PairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + PairSeparator + userB
}

//SplitPairKey returns the two participants of a conversation key
func SplitPairKey(key string) (string, string, bool) {
	parts := strings.Split(key, PairSeparator)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
