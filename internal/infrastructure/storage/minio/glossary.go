package minio

import (
	"bytes"
	"context"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/glossaryfile"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// DefaultGlossaryKey is the object key used when none is configured.
const DefaultGlossaryKey = "glossary.yaml"

const yamlContentType = "application/yaml"

var _ glossary.Provider = (*GlossaryStore)(nil)

// GlossaryStore loads and publishes a glossary file kept as one object.
// The object uses the same YAML layout as the local glossary file.
type GlossaryStore struct {
	client *Client
	key    string
	logger logging.Logger
}

// NewGlossaryStore returns a store for key in the client's bucket.
func NewGlossaryStore(c *Client, key string, log logging.Logger) *GlossaryStore {
	if key == "" {
		key = DefaultGlossaryKey
	}
	return &GlossaryStore{client: c, key: key, logger: logging.OrNop(log)}
}

// Key returns the object key.
func (s *GlossaryStore) Key() string { return s.key }

// Load implements glossary.Provider.  A missing object is a corrupt
// source, the same as a missing local file.
func (s *GlossaryStore) Load(ctx context.Context) (*clinical.Glossary, error) {
	data, info, err := s.client.Get(ctx, s.key)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.Wrap(err, errors.ErrCodeGlossaryCorrupt, "glossary object not found").
			WithDetail("bucket=" + s.client.Bucket() + " key=" + s.key)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGlossaryUnavailable, "failed to read glossary object")
	}
	s.logger.Debug("glossary object read",
		logging.String("bucket", s.client.Bucket()),
		logging.String("key", s.key),
		logging.String("etag", info.ETag),
		logging.Int64("bytes", info.Size))
	return glossaryfile.Parse(data)
}

// Save writes g as YAML, creating the bucket when needed.
func (s *GlossaryStore) Save(ctx context.Context, g *clinical.Glossary) (ObjectInfo, error) {
	var buf bytes.Buffer
	if err := glossaryfile.Write(&buf, g); err != nil {
		return ObjectInfo{}, err
	}
	if err := s.client.EnsureBucket(ctx); err != nil {
		return ObjectInfo{}, err
	}
	info, err := s.client.Put(ctx, s.key, buf.Bytes(), yamlContentType)
	if err != nil {
		return ObjectInfo{}, err
	}
	s.logger.Info("glossary object written",
		logging.String("bucket", s.client.Bucket()),
		logging.String("key", s.key),
		logging.Int("terms", len(g.Terms)))
	return info, nil
}
