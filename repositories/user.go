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

type IUserRepository interface {
	Create(user domain.User) (domain.User, error)
	Get(id string) (domain.User, error)
	List() ([]domain.User, error)
	SetOnline(id string, online bool) error
	SetTheme(id, theme string) error
	SetStatus(id, status string) error
}

// UserRepository stores users under their external identity string.
// Identities are minted by an external provider, never here.
type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

func userKey(id string) []byte {
	return []byte(fmt.Sprintf("user:%s", id))
}

func (u *UserRepository) Create(user domain.User) (domain.User, error) {
	user.LastSeen = time.Now().UTC()
	if user.Theme == "" {
		user.Theme = "light"
	}
	bytes, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, err
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), bytes)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) Get(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		return readUser(txn, id, &user)
	})
	return user, err
}

func readUser(txn *badger.Txn, id string, user *domain.User) error {
	item, err := txn.Get(userKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("user %s: %w", id, chaterrors.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, user)
	})
}

func (u *UserRepository) List() ([]domain.User, error) {
	var users []domain.User
	prefix := []byte("user:")
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user domain.User
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &user)
			})
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (u *UserRepository) mutate(id string, fn func(*domain.User)) error {
	return u.db.Update(func(txn *badger.Txn) error {
		var user domain.User
		if err := readUser(txn, id, &user); err != nil {
			return err
		}
		fn(&user)
		bytes, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), bytes)
	})
}

// SetOnline flips the live flag; going offline stamps lastSeen.
func (u *UserRepository) SetOnline(id string, online bool) error {
	return u.mutate(id, func(user *domain.User) {
		user.IsOnline = online
		if !online {
			user.LastSeen = time.Now().UTC()
		}
	})
}

func (u *UserRepository) SetTheme(id, theme string) error {
	return u.mutate(id, func(user *domain.User) {
		user.Theme = theme
	})
}

func (u *UserRepository) SetStatus(id, status string) error {
	return u.mutate(id, func(user *domain.User) {
		user.Status = status
	})
}
