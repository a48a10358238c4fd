// Package store persists chat messages in BadgerDB and serves the
// conversation lookup between two participants.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Message is a single persisted chat message. Sender and receiver are
// free-form participant identifiers; nothing requires them to belong to a
// known user. Once stored a message is never mutated or deleted.
type Message struct {
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStore is an append-only message log backed by BadgerDB.
type MessageStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageStore(db *badger.DB, log *slog.Logger) *MessageStore {
	return &MessageStore{db: db, log: log}
}

// Append persists a message and returns the stored form. If the candidate
// carries no timestamp the current time is assigned before the write.
// Storage faults are returned to the caller, never swallowed here.
func (s *MessageStore) Append(msg Message) (Message, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	key := messageKey(msg)
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encoding message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return Message{}, fmt.Errorf("storing message: %w", err)
	}

	s.log.Debug("message stored",
		slog.String("sender", msg.Sender),
		slog.String("receiver", msg.Receiver),
		slog.Time("timestamp", msg.Timestamp),
	)
	return msg, nil
}

// FindConversation returns every message exchanged between the two given
// participants, in either direction, ordered by ascending timestamp. Unknown
// participants yield an empty slice, not an error. There is no pagination.
func (s *MessageStore) FindConversation(participantA, participantB string) ([]Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", pairKey(participantA, participantB)))

	// Non-nil so the HTTP layer serializes an empty conversation as [].
	messages := make([]Message, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return fmt.Errorf("decoding message %q: %w", it.Item().Key(), err)
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	return messages, nil
}

// messageKey builds "msg:{pair}:{timestamp_padded}:{uuid}":
//  1. The pair segment groups one conversation under a common prefix.
//  2. 19-digit zero padding keeps keys in chronological order under Badger's
//     lexicographic iteration.
//  3. The UUID disambiguates two messages written in the same nanosecond, so
//     duplicates are kept rather than overwritten.
func messageKey(msg Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		pairKey(msg.Sender, msg.Receiver),
		msg.Timestamp.UnixNano(),
		uuid.New(),
	))
}

// pairKey maps the unordered participant pair {a, b} to a single key segment,
// which is what makes FindConversation symmetric. Identifiers are free-form
// text, so each one is escaped before joining to keep ":" inside a name from
// colliding with the key separators.
func pairKey(a, b string) string {
	ea, eb := url.QueryEscape(a), url.QueryEscape(b)
	if eb < ea {
		ea, eb = eb, ea
	}
	return ea + ":" + eb
}
