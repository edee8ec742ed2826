package minio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/internal/infrastructure/storage/glossaryfile"
	"github.com/turtacn/doctalk/internal/testutil"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

const sampleGlossary = `terms:
  - canonical: myocardial infarction
    category: diagnosis
    aliases: [heart attack]
acronyms:
  - acronym: MI
    expansions: [myocardial infarction]
`

func newTestClient(t *testing.T, endpoint, bucket string) *Client {
	t.Helper()
	c, err := NewClient(MinIOConfig{
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "testsecret",
		Bucket:          bucket,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(MinIOConfig{Bucket: "b"}, nil)
	assert.True(t, errors.IsConfiguration(err))
	_, err = NewClient(MinIOConfig{Endpoint: "localhost:9000"}, nil)
	assert.True(t, errors.IsConfiguration(err))

	c, err := NewClient(MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, c.config.Region)
	assert.Equal(t, "b", c.Bucket())
}

func TestGlossaryStore_Load(t *testing.T) {
	fake, endpoint := testutil.NewFakeS3(t, "glossaries")
	fake.Put("glossaries", "cardio.yaml", []byte(sampleGlossary))
	log := testutil.NewMockLogger()
	store := NewGlossaryStore(newTestClient(t, endpoint, "glossaries"), "cardio.yaml", log)

	g, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, g.Terms, 1)
	assert.Equal(t, "myocardial infarction", g.Terms[0].Canonical)
	assert.Equal(t, []clinical.Alias{{Text: "heart attack", TermID: 1}}, g.Aliases)
	require.Len(t, g.Acronyms, 1)

	msg, ok := log.Find("debug", "glossary object read")
	require.True(t, ok)
	etag, _ := msg.Field("etag")
	assert.Equal(t, "etag-get", etag)
}

func TestGlossaryStore_MissingObjectIsCorrupt(t *testing.T) {
	_, endpoint := testutil.NewFakeS3(t, "glossaries")
	store := NewGlossaryStore(newTestClient(t, endpoint, "glossaries"), "", nil)
	assert.Equal(t, DefaultGlossaryKey, store.Key())

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGlossaryCorrupt))
	assert.True(t, errors.IsConfiguration(err))
}

func TestGlossaryStore_UnreachableIsUnavailable(t *testing.T) {
	fake, endpoint := testutil.NewFakeS3(t, "glossaries")
	fake.SetFailing(true)
	store := NewGlossaryStore(newTestClient(t, endpoint, "glossaries"), "g.yaml", nil)

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGlossaryUnavailable, errors.GetCode(err))
}

func TestGlossaryStore_CorruptObject(t *testing.T) {
	fake, endpoint := testutil.NewFakeS3(t, "glossaries")
	fake.Put("glossaries", "g.yaml", []byte("terms: [unclosed"))
	store := NewGlossaryStore(newTestClient(t, endpoint, "glossaries"), "g.yaml", nil)

	_, err := store.Load(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeGlossaryCorrupt))
}

func TestGlossaryStore_SaveCreatesBucket(t *testing.T) {
	fake, endpoint := testutil.NewFakeS3(t)
	store := NewGlossaryStore(newTestClient(t, endpoint, "fresh"), "g.yaml", nil)
	src, err := glossaryfile.Parse([]byte(sampleGlossary))
	require.NoError(t, err)

	info, err := store.Save(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "g.yaml", info.Key)

	raw, ok := fake.Get("fresh", "g.yaml")
	require.True(t, ok)
	back, err := glossaryfile.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, src, back)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, src, loaded)
}

func TestClient_HealthCheck(t *testing.T) {
	_, endpoint := testutil.NewFakeS3(t, "present")
	require.NoError(t, newTestClient(t, endpoint, "present").HealthCheck(context.Background()))

	err := newTestClient(t, endpoint, "absent").HealthCheck(context.Background())
	assert.Equal(t, errors.ErrCodeObjectStoreError, errors.GetCode(err))
}
