package redis

import (
	"context"
	"strings"

	"github.com/turtacn/doctalk/pkg/errors"
)

// AcronymStore keeps each document's acronym map in one hash,
// <prefix>:acronyms:<doc_id>, with the acronym as field.  Entries never
// expire.
type AcronymStore struct {
	client *Client
	prefix string
}

// NewAcronymStore builds a store; an empty prefix means DefaultKeyPrefix.
func NewAcronymStore(client *Client, prefix string) *AcronymStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &AcronymStore{client: client, prefix: prefix}
}

func (s *AcronymStore) key(docID string) string {
	return s.prefix + ":acronyms:" + docID
}

// Get implements acronym.Store.
func (s *AcronymStore) Get(ctx context.Context, docID string) (map[string]string, error) {
	if docID == "" {
		return map[string]string{}, nil
	}
	m, err := s.client.HGetAll(ctx, s.key(docID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "hgetall acronyms").WithDetail("doc_id=" + docID)
	}
	return m, nil
}

// Put implements acronym.Store.
func (s *AcronymStore) Put(ctx context.Context, docID string, mapping map[string]string) error {
	if docID == "" || len(mapping) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(mapping))
	for acr, canonical := range mapping {
		values = append(values, strings.ToUpper(acr), canonical)
	}
	if err := s.client.HSet(ctx, s.key(docID), values...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "hset acronyms").WithDetail("doc_id=" + docID)
	}
	return nil
}
