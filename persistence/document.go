package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"
)

var emptyDocument = []byte("{}\n")

//ValidUsername reports whether name is non-empty and made of letters only
func ValidUsername(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func encodeDocument(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAccounts(data []byte) (Accounts, error) {
	var accounts Accounts
	if err := decodeStrict(data, &accounts); err != nil {
		return nil, err
	}
	if err := validateAccounts(accounts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return accounts, nil
}

//validateAccounts holds the rules every accounts document must meet, on load and on save
func validateAccounts(accounts Accounts) error {
	if accounts == nil {
		return fmt.Errorf("%w: accounts document is not a mapping", ErrInvalidDocument)
	}
	for name, acc := range accounts {
		if name == "" {
			return fmt.Errorf("%w: account with empty username", ErrInvalidDocument)
		}
		if acc.PasswordHash == "" {
			return fmt.Errorf("%w: account %q has no password hash", ErrInvalidDocument, name)
		}
		if acc.Role != RoleUser && acc.Role != RoleAdmin {
			return fmt.Errorf("%w: account %q has unknown role %q", ErrInvalidDocument, name, acc.Role)
		}
	}
	return nil
}

func decodeConversations(data []byte) (Conversations, error) {
	var conversations Conversations
	if err := decodeStrict(data, &conversations); err != nil {
		return nil, err
	}
	if err := validateConversations(conversations); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return conversations, nil
}

//validateConversations holds the rules every conversations document must meet, on load and on save
func validateConversations(conversations Conversations) error {
	if conversations == nil {
		return fmt.Errorf("%w: conversations document is not a mapping", ErrInvalidDocument)
	}
	for key, log := range conversations {
		userA, userB, ok := SplitPairKey(key)
		if !ok || userA == "" || userB == "" {
			return fmt.Errorf("%w: malformed conversation key %q", ErrInvalidDocument, key)
		}
		if PairKey(userA, userB) != key {
			return fmt.Errorf("%w: conversation key %q is not in canonical order", ErrInvalidDocument, key)
		}
		for i, msg := range log {
			if msg.Sender != userA && msg.Sender != userB {
				return fmt.Errorf("%w: message %d in %q sent by non-participant %q", ErrInvalidDocument, i, key, msg.Sender)
			}
			if strings.TrimSpace(msg.Message) == "" {
				return fmt.Errorf("%w: message %d in %q is empty", ErrInvalidDocument, i, key)
			}
		}
	}
	return nil
}

func decodeStrict(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty document", ErrCorruptDocument)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after document", ErrCorruptDocument)
	}
	return nil
}
