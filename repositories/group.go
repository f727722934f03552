package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"
	chaterrors "chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IGroupRepository interface {
	Create(group domain.Group) (domain.Group, error)
	Get(id int64) (domain.Group, error)
	List() ([]domain.Group, error)
	ListForUser(userID string) ([]domain.Group, error)
	AddMember(member domain.GroupMember) (domain.GroupMember, error)
	RemoveMember(groupID int64, userID string) error
	Members(groupID int64) ([]domain.GroupMember, error)
	MemberIDs(groupID int64) ([]string, error)
	IsMember(groupID int64, userID string) (bool, error)
}

type GroupRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) (*GroupRepository, error) {
	seq, err := db.GetSequence([]byte("seq:group"), 1)
	if err != nil {
		return nil, fmt.Errorf("group sequence: %w", err)
	}
	return &GroupRepository{db: db, seq: seq, log: log}, nil
}

func (g *GroupRepository) Close() error {
	return g.seq.Release()
}

func groupKey(id int64) []byte {
	return []byte(fmt.Sprintf("group:%019d", id))
}

func memberKey(groupID int64, userID string) []byte {
	return []byte(fmt.Sprintf("member:%d:%s", groupID, userID))
}

// memberOfKey is the reverse index resolving a user's groups.
func memberOfKey(userID string, groupID int64) []byte {
	return []byte(fmt.Sprintf("memberof:%s:%019d", userID, groupID))
}

func (g *GroupRepository) Create(group domain.Group) (domain.Group, error) {
	n, err := g.seq.Next()
	if err != nil {
		return domain.Group{}, fmt.Errorf("next group id: %w", err)
	}
	group.ID = int64(n) + 1
	group.CreatedAt = time.Now().UTC()

	bytes, err := json.Marshal(group)
	if err != nil {
		return domain.Group{}, err
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(group.ID), bytes)
	})
	if err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

func (g *GroupRepository) Get(id int64) (domain.Group, error) {
	var group domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("group %d: %w", id, chaterrors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &group)
		})
	})
	return group, err
}

func (g *GroupRepository) List() ([]domain.Group, error) {
	var groups []domain.Group
	prefix := []byte("group:")
	err := g.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var group domain.Group
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &group)
			})
			if err != nil {
				return err
			}
			groups = append(groups, group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (g *GroupRepository) ListForUser(userID string) ([]domain.Group, error) {
	prefix := []byte(fmt.Sprintf("memberof:%s:", userID))
	var ids []int64
	err := g.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id int64
			err := it.Item().Value(func(value []byte) error {
				_, err := fmt.Sscanf(string(value), "%d", &id)
				return err
			})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var groups []domain.Group
	for _, id := range ids {
		group, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (g *GroupRepository) AddMember(member domain.GroupMember) (domain.GroupMember, error) {
	member.JoinedAt = time.Now().UTC()
	bytes, err := json.Marshal(member)
	if err != nil {
		return domain.GroupMember{}, err
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(member.GroupID)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("group %d: %w", member.GroupID, chaterrors.ErrNotFound)
		} else if err != nil {
			return err
		}
		if err := txn.Set(memberKey(member.GroupID, member.UserID), bytes); err != nil {
			return err
		}
		ref := []byte(fmt.Sprintf("%d", member.GroupID))
		return txn.Set(memberOfKey(member.UserID, member.GroupID), ref)
	})
	if err != nil {
		return domain.GroupMember{}, err
	}
	return member, nil
}

// RemoveMember is idempotent: removing an absent membership is a no-op.
func (g *GroupRepository) RemoveMember(groupID int64, userID string) error {
	return g.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(groupID, userID)); err != nil {
			return err
		}
		return txn.Delete(memberOfKey(userID, groupID))
	})
}

func (g *GroupRepository) Members(groupID int64) ([]domain.GroupMember, error) {
	var members []domain.GroupMember
	prefix := []byte(fmt.Sprintf("member:%d:", groupID))
	err := g.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var member domain.GroupMember
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &member)
			})
			if err != nil {
				return err
			}
			members = append(members, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (g *GroupRepository) MemberIDs(groupID int64) ([]string, error) {
	members, err := g.Members(groupID)
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m domain.GroupMember, _ int) string {
		return m.UserID
	}), nil
}

// IsMember observes any prior AddMember immediately: membership writes
// commit before returning.
func (g *GroupRepository) IsMember(groupID int64, userID string) (bool, error) {
	var found bool
	err := g.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(groupID, userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}
