// Package search maintains a full-text index over persisted message
// content. The index is fed asynchronously by the event fan-out, so a
// slow index never delays relay.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/blugelabs/bluge"
)

type Hit struct {
	MessageID int64  `json:"messageId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
}

type Index struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

// Open creates or reopens the index at path. An empty path yields an
// in-memory index, used by tests.
func Open(path string, log *slog.Logger) (*Index, error) {
	config := bluge.DefaultConfig(path)
	if path == "" {
		config = bluge.InMemoryOnlyConfig()
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("open bluge index: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// IndexMessage upserts the message document; edits replace the previous
// content under the same id.
func (i *Index) IndexMessage(msg domain.Message) error {
	doc := bluge.NewDocument(strconv.FormatInt(msg.ID, 10)).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderID).StoreValue())

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Update(doc.ID(), doc)
}

// Remove drops a logically deleted message from the index so it stops
// surfacing in results; the durable row itself is kept by the gateway.
func (i *Index) Remove(messageID int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Delete(bluge.Identifier(strconv.FormatInt(messageID, 10)))
}

// Search runs a match query over message content and returns up to
// limit hits plus the total match count.
func (i *Index) Search(ctx context.Context, terms string, limit int) ([]Hit, uint64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("index reader: %w", err)
	}
	defer reader.Close()

	query := bluge.NewMatchQuery(terms).SetField("content")
	request := bluge.NewTopNSearch(limit, query).WithStandardAggregations()

	iter, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	var hits []Hit
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, _ = strconv.ParseInt(string(value), 10, 64)
			case "content":
				hit.Content = string(value)
			case "sender":
				hit.SenderID = string(value)
			}
			return true
		})
		if err != nil {
			return nil, 0, err
		}
		hits = append(hits, hit)
	}
	return hits, iter.Aggregations().Count(), nil
}

// Consume keeps the index in sync with persisted message state.
func (i *Index) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePersisted:
		return i.IndexMessage(evt.Message)
	case event.MessageEdited:
		return i.IndexMessage(evt.Message)
	case event.MessageDeleted:
		return i.Remove(evt.Message.ID)
	default:
		return nil
	}
}
