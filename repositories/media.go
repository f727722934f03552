package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
)

type IMediaRepository interface {
	Add(media domain.Media) (domain.Media, error)
	ListForMessage(messageID int64) ([]domain.Media, error)
}

// MediaRepository stores attachment metadata only; payload bytes live in
// external storage.
type MediaRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewMediaRepository(db *badger.DB, log *slog.Logger) (*MediaRepository, error) {
	seq, err := db.GetSequence([]byte("seq:media"), 1)
	if err != nil {
		return nil, fmt.Errorf("media sequence: %w", err)
	}
	return &MediaRepository{db: db, seq: seq, log: log}, nil
}

func (m *MediaRepository) Close() error {
	return m.seq.Release()
}

func mediaKey(id int64) []byte {
	return []byte(fmt.Sprintf("media:%019d", id))
}

func mediaIndexKey(messageID, id int64) []byte {
	return []byte(fmt.Sprintf("mediaidx:%d:%019d", messageID, id))
}

func (m *MediaRepository) Add(media domain.Media) (domain.Media, error) {
	n, err := m.seq.Next()
	if err != nil {
		return domain.Media{}, fmt.Errorf("next media id: %w", err)
	}
	media.ID = int64(n) + 1
	media.UploadedAt = time.Now().UTC()

	bytes, err := json.Marshal(media)
	if err != nil {
		return domain.Media{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(mediaKey(media.ID), bytes); err != nil {
			return err
		}
		return txn.Set(mediaIndexKey(media.MessageID, media.ID), bytes)
	})
	if err != nil {
		return domain.Media{}, err
	}
	return media, nil
}

func (m *MediaRepository) ListForMessage(messageID int64) ([]domain.Media, error) {
	var items []domain.Media
	prefix := []byte(fmt.Sprintf("mediaidx:%d:", messageID))
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var media domain.Media
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &media)
			})
			if err != nil {
				return err
			}
			items = append(items, media)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
