package conversation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranscriptStore(t *testing.T) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTranscriptStore(client), mr
}

func TestTranscriptStoreAppendAndList(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{
		Role: "user", UserID: "u1", UserName: "Ada", Body: "hello", Kind: "text",
	}))
	require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{
		Role: "assistant", UserID: "u1", Body: "hi Ada", Kind: "text",
	}))

	msgs, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].Timestamp.IsZero())
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestTranscriptStoreListLimit(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, store.Append(ctx, "sess-1", TranscriptMessage{Role: "user", Body: body}))
	}

	msgs, err := store.List(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Body)
	assert.Equal(t, "three", msgs[1].Body)
}

func TestTranscriptStoreTTL(t *testing.T) {
	store, mr := newTestTranscriptStore(t)

	require.NoError(t, store.Append(context.Background(), "sess-1", TranscriptMessage{Role: "user", Body: "hello"}))
	ttl := mr.TTL(transcriptKey("sess-1"))
	assert.Equal(t, transcriptTTL, ttl)
}

func TestTranscriptStoreRequiresSessionID(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	assert.Error(t, store.Append(context.Background(), "", TranscriptMessage{Body: "x"}))
}

func TestTranscriptStoreNilIsSafe(t *testing.T) {
	var store *TranscriptStore
	assert.NoError(t, store.Append(context.Background(), "sess-1", TranscriptMessage{}))

	msgs, err := store.List(context.Background(), "sess-1", 0)
	assert.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestTranscriptStoreListEmptySession(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	msgs, err := store.List(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
