// Package repositories contains the BadgerDB persistence gateway.
// Every operation is atomic at record granularity; an Update commits
// before returning, so a read following a write by the same caller
// observes that write.
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"
	chaterrors "chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	Create(msg domain.Message) (domain.Message, error)
	Get(id int64) (domain.Message, error)
	Edit(id int64, content string) (domain.Message, error)
	SoftDelete(id int64) (domain.Message, error)
	MarkRead(id int64) (domain.Message, error)
	ListForUser(userID string) ([]domain.Message, error)
	ListForGroup(groupID int64) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository wires a message gateway around db. Ids come from
// a Badger sequence with a bandwidth of one, so they are dense and
// strictly increasing across the store's lifetime.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:message"), 1)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log, limitMessages: limitMessages}, nil
}

// Close releases the id sequence lease.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// Key layout. The 19-digit zero padding keeps lexicographic order equal
// to chronological order on prefix scans; direct messages are indexed
// under both participants so either side can fetch the conversation.
func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("msg:%019d", id))
}

func directIndexKey(userID string, id int64) []byte {
	return []byte(fmt.Sprintf("dm:%s:%019d", userID, id))
}

func groupIndexKey(groupID, id int64) []byte {
	return []byte(fmt.Sprintf("grp:%d:%019d", groupID, id))
}

// Create assigns the canonical id and server timestamp, then persists
// the record with its conversation indexes in a single transaction.
func (m *MessageRepository) Create(msg domain.Message) (domain.Message, error) {
	n, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message id: %w", err)
	}
	msg.ID = int64(n) + 1
	msg.Timestamp = time.Now().UTC()

	bytes, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.ID), bytes); err != nil {
			return err
		}
		ref := []byte(fmt.Sprintf("%d", msg.ID))
		switch {
		case msg.Grouped():
			return txn.Set(groupIndexKey(msg.GroupID, msg.ID), ref)
		case msg.Direct():
			if err := txn.Set(directIndexKey(msg.SenderID, msg.ID), ref); err != nil {
				return err
			}
			return txn.Set(directIndexKey(msg.ReceiverID, msg.ID), ref)
		default:
			// Broadcast debug case: reachable through the primary key only.
			return txn.Set(directIndexKey(msg.SenderID, msg.ID), ref)
		}
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (m *MessageRepository) Get(id int64) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return readMessage(txn, id, &msg)
	})
	return msg, err
}

func readMessage(txn *badger.Txn, id int64, msg *domain.Message) error {
	item, err := txn.Get(messageKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("message %d: %w", id, chaterrors.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, msg)
	})
}

// mutate applies fn to the stored record inside one transaction.
func (m *MessageRepository) mutate(id int64, fn func(*domain.Message)) (domain.Message, error) {
	var msg domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		if err := readMessage(txn, id, &msg); err != nil {
			return err
		}
		fn(&msg)
		bytes, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(id), bytes)
	})
	return msg, err
}

func (m *MessageRepository) Edit(id int64, content string) (domain.Message, error) {
	now := time.Now().UTC()
	return m.mutate(id, func(msg *domain.Message) {
		msg.Content = content
		msg.IsEdited = true
		msg.EditedAt = &now
	})
}

// SoftDelete flips the logical flag; the row is never removed.
func (m *MessageRepository) SoftDelete(id int64) (domain.Message, error) {
	return m.mutate(id, func(msg *domain.Message) {
		msg.IsDeleted = true
	})
}

func (m *MessageRepository) MarkRead(id int64) (domain.Message, error) {
	return m.mutate(id, func(msg *domain.Message) {
		msg.IsRead = true
	})
}

// ListForUser returns the direct history visible to userID, sent and
// received, in chronological order.
func (m *MessageRepository) ListForUser(userID string) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("dm:%s:", userID))
	return m.scan(prefix)
}

func (m *MessageRepository) ListForGroup(groupID int64) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("grp:%d:", groupID))
	return m.scan(prefix)
}

// scan walks an index prefix and resolves each reference against the
// primary key inside the same read transaction.
func (m *MessageRepository) scan(prefix []byte) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			var id int64
			err := it.Item().Value(func(value []byte) error {
				_, err := fmt.Sscanf(string(value), "%d", &id)
				return err
			})
			if err != nil {
				return err
			}
			var msg domain.Message
			if err := readMessage(txn, id, &msg); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
