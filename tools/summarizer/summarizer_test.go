package summarizer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/retry"
)

type fakeBackend struct {
	responses []string
	calls     int
}

func (f *fakeBackend) Complete(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[i], nil
}

func TestSummarize_ParsesAndValidates(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`{"sections":[{"title":"Acme FinTech ETL modernization","bullets":["Cut infra costs","Unify pipelines","Improve governance"],"script":"Short script."}]}`,
	}}
	tool := New(backend)
	out, err := tool.Summarize(context.Background(), Input{ReportText: "report"})
	require.NoError(t, err)
	require.Len(t, out.Sections, 1)
	assert.Equal(t, "Acme FinTech ETL modernization", out.Sections[0].Title)
	assert.Equal(t, 1, backend.calls)
}

func TestSummarize_StripsCodeFence(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		"```json\n" + `{"sections":[{"title":"T","bullets":["a","b","c"],"script":"s"}]}` + "\n```",
	}}
	tool := New(backend)
	out, err := tool.Summarize(context.Background(), Input{ReportText: "report"})
	require.NoError(t, err)
	assert.Equal(t, "T", out.Sections[0].Title)
}

func TestSummarize_RetriesOnInvalidJSONThenSucceeds(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		"not json at all",
		`{"sections":[{"title":"T","bullets":["a","b","c"],"script":"s"}]}`,
	}}
	tool := New(backend, WithRetryPolicy(retry.Policy{Attempts: 4, Base: time.Millisecond}))
	out, err := tool.Summarize(context.Background(), Input{ReportText: "report"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
	assert.Len(t, out.Sections, 1)
}

func TestSummarize_ExhaustsRetriesReturnsInvalidOutput(t *testing.T) {
	backend := &fakeBackend{responses: []string{"not json", "still not json"}}
	tool := New(backend, WithRetryPolicy(retry.Policy{Attempts: 2, Base: time.Millisecond}))
	_, err := tool.Summarize(context.Background(), Input{ReportText: "report"})
	require.Error(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestSummarize_TruncatesOverlongScript(t *testing.T) {
	longScript := strings.Repeat("x", 800)
	backend := &fakeBackend{responses: []string{
		`{"sections":[{"title":"T","bullets":["a","b","c"],"script":"` + longScript + `"}]}`,
	}}
	tool := New(backend)
	out, err := tool.Summarize(context.Background(), Input{ReportText: "report", MaxScriptChars: 700})
	require.NoError(t, err)
	assert.Len(t, out.Sections[0].Script, 700)
}

func TestSummarize_CacheHitSkipsBackend(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`{"sections":[{"title":"T","bullets":["a","b","c"],"script":"s"}]}`,
	}}
	store := cache.NewFileStore(t.TempDir())
	tool := New(backend, WithCache(store))

	in := Input{ReportText: "report", MaxSections: 5}
	_, err := tool.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)

	_, err = tool.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls, "cache hit must not invoke the backend again (spec.md invariant 4)")
}

func TestSummarize_ExpiredCacheEntryMissesAndRefetches(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`{"sections":[{"title":"T","bullets":["a","b","c"],"script":"s"}]}`,
		`{"sections":[{"title":"T2","bullets":["a","b","c"],"script":"s"}]}`,
	}}
	store := cache.NewFileStore(t.TempDir())
	tool := New(backend, WithCache(store), WithCacheTTL(time.Nanosecond))

	in := Input{ReportText: "report", MaxSections: 5}
	_, err := tool.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)

	time.Sleep(2 * time.Millisecond)
	_, err = tool.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls, "an expired entry must not be served from cache (spec.md §4.3 TTL)")
}

func TestSummarize_ChangingMaxSectionsChangesCacheKey(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`{"sections":[{"title":"T","bullets":["a","b","c"],"script":"s"}]}`,
	}}
	store := cache.NewFileStore(t.TempDir())
	tool := New(backend, WithCache(store))

	_, err := tool.Summarize(context.Background(), Input{ReportText: "report", MaxSections: 5})
	require.NoError(t, err)
	_, err = tool.Summarize(context.Background(), Input{ReportText: "report", MaxSections: 6})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}
