package imagegen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/section"
)

type fakeBackend struct {
	calls      int
	failTimes  int
	gotWidth   int
	gotHeight  int
	errOnCalls map[int]error
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, width, height int, safety SafetyTier) (GeneratedImage, error) {
	f.calls++
	f.gotWidth, f.gotHeight = width, height
	if err, ok := f.errOnCalls[f.calls]; ok {
		return GeneratedImage{}, err
	}
	return GeneratedImage{PNGBytes: []byte("fake-png")}, nil
}

type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	return u.url, u.err
}

func TestGenerate_ResolvesAspectToSize(t *testing.T) {
	backend := &fakeBackend{errOnCalls: map[int]error{}}
	tool := New(backend, t.TempDir())
	_, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "16:9"})
	require.NoError(t, err)
	assert.Equal(t, 1280, backend.gotWidth)
	assert.Equal(t, 720, backend.gotHeight)
}

func TestGenerate_LocalKindWithoutReturnShared(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, t.TempDir())
	artifact, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "1:1"})
	require.NoError(t, err)
	assert.Equal(t, section.ImageKindLocal, artifact.Kind)
	assert.FileExists(t, artifact.Value)
}

func TestGenerate_URLKindWhenReturnShared(t *testing.T) {
	backend := &fakeBackend{}
	uploader := &fakeUploader{url: "https://cdn.example/img.png"}
	tool := New(backend, t.TempDir(), WithUploader(uploader))
	artifact, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "1:1", ReturnShared: true})
	require.NoError(t, err)
	assert.Equal(t, section.ImageKindURL, artifact.Kind)
	assert.Equal(t, "https://cdn.example/img.png", artifact.Value)
}

func TestGenerate_ReturnSharedWithoutUploaderIsError(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, t.TempDir())
	_, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "1:1", ReturnShared: true})
	assert.Error(t, err)
}

func TestGenerate_RetriesTransientBackendError(t *testing.T) {
	backend := &fakeBackend{errOnCalls: map[int]error{1: toolerr.New(toolerr.Transient, "503")}}
	tool := New(backend, t.TempDir(), WithRetryPolicy(retry.Policy{Attempts: 3, Base: time.Millisecond}))
	_, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "1:1"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestGenerate_UnknownAspectIsBadRequest(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, t.TempDir())
	_, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "21:9"})
	require.Error(t, err)
	assert.Equal(t, toolerr.BadRequest, toolerr.KindOf(err))
}

func TestGenerate_CacheHitSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	store := cache.NewFileStore(t.TempDir())
	tool := New(backend, t.TempDir(), WithCache(store))

	in := Input{Prompt: "p", Aspect: "1:1"}
	_, err := tool.Generate(context.Background(), in)
	require.NoError(t, err)
	_, err = tool.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)
}

func TestGenerate_ExpiredCacheEntryMissesAndRefetches(t *testing.T) {
	backend := &fakeBackend{}
	store := cache.NewFileStore(t.TempDir())
	tool := New(backend, t.TempDir(), WithCache(store), WithCacheTTL(time.Nanosecond))

	in := Input{Prompt: "p", Aspect: "1:1"}
	_, err := tool.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)

	time.Sleep(2 * time.Millisecond)
	_, err = tool.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls, "an expired entry must not be served from cache (spec.md §4.3 TTL)")
}

func TestGenerate_SizeOverridesAspect(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, t.TempDir())
	_, err := tool.Generate(context.Background(), Input{Prompt: "p", Aspect: "16:9", Size: "640x480"})
	require.NoError(t, err)
	assert.Equal(t, 640, backend.gotWidth)
	assert.Equal(t, 480, backend.gotHeight)
}
