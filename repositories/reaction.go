package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
)

type IReactionRepository interface {
	Toggle(messageID int64, userID, emoji string) (domain.Reaction, bool, error)
	Remove(messageID int64, userID, emoji string) error
	List(messageID int64) ([]domain.Reaction, error)
}

type ReactionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewReactionRepository(db *badger.DB, log *slog.Logger) *ReactionRepository {
	return &ReactionRepository{db: db, log: log}
}

func reactionKey(messageID int64, userID, emoji string) []byte {
	return []byte(fmt.Sprintf("reaction:%d:%s:%s", messageID, userID, emoji))
}

// Toggle adds the (message, user, emoji) triple when absent and removes
// it when present, inside one transaction. Adding twice therefore
// equals removing once. The second return value reports removal.
func (r *ReactionRepository) Toggle(messageID int64, userID, emoji string) (domain.Reaction, bool, error) {
	reaction := domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	var removed bool
	err := r.db.Update(func(txn *badger.Txn) error {
		key := reactionKey(messageID, userID, emoji)
		_, err := txn.Get(key)
		switch err {
		case nil:
			removed = true
			return txn.Delete(key)
		case badger.ErrKeyNotFound:
			bytes, err := json.Marshal(reaction)
			if err != nil {
				return err
			}
			return txn.Set(key, bytes)
		default:
			return err
		}
	})
	if err != nil {
		return domain.Reaction{}, false, err
	}
	return reaction, removed, nil
}

// Remove deletes the triple; absent triples are a no-op.
func (r *ReactionRepository) Remove(messageID int64, userID, emoji string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(reactionKey(messageID, userID, emoji))
	})
}

func (r *ReactionRepository) List(messageID int64) ([]domain.Reaction, error) {
	var reactions []domain.Reaction
	prefix := []byte(fmt.Sprintf("reaction:%d:", messageID))
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var reaction domain.Reaction
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &reaction)
			})
			if err != nil {
				return err
			}
			reactions = append(reactions, reaction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
