package deck

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckgen/deckgen/internal/idempotency"
)

type fakeBackend struct {
	createPresCalls  int
	createSlideCalls int
	deleteCalls      int
	notesErr         error
	fallbackErr      error
	fallbackCalls    int
	nextSlideID      int
}

func (f *fakeBackend) CreatePresentation(ctx context.Context, title string) (string, string, string, error) {
	f.createPresCalls++
	return "pres-1", "https://slides.example/pres-1", "blank-slide-0", nil
}

func (f *fakeBackend) DeleteSlide(ctx context.Context, presentationID, slideID string) error {
	f.deleteCalls++
	return nil
}

func (f *fakeBackend) CreateSlide(ctx context.Context, presentationID string, content SlideContent) (string, error) {
	f.createSlideCalls++
	f.nextSlideID++
	return "slide-" + string(rune('0'+f.nextSlideID)), nil
}

func (f *fakeBackend) SetSpeakerNotes(ctx context.Context, presentationID, slideID, script string) error {
	return f.notesErr
}

func (f *fakeBackend) AddScriptFallbackTextBox(ctx context.Context, presentationID, slideID, script string) error {
	f.fallbackCalls++
	return f.fallbackErr
}

func newStore(t *testing.T) idempotency.Store {
	return idempotency.NewFileStore(filepath.Join(t.TempDir(), "idempotency.json"))
}

func TestCreate_NewPresentationDeletesBlankSlide(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, newStore(t))
	res, err := tool.Create(context.Background(), Input{Title: "T", Bullets: []string{"a", "b", "c"}, Script: "s"})
	require.NoError(t, err)
	assert.Equal(t, "pres-1", res.PresentationID)
	assert.Equal(t, 1, backend.deleteCalls)
	assert.False(t, res.ReusedExisting)
}

func TestCreate_AppendsToExistingPresentationID(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, newStore(t))
	res, err := tool.Create(context.Background(), Input{Title: "T", Bullets: []string{"a", "b", "c"}, PresentationID: "existing-pres"})
	require.NoError(t, err)
	assert.Equal(t, "existing-pres", res.PresentationID)
	assert.Equal(t, 0, backend.createPresCalls)
	assert.Equal(t, 0, backend.deleteCalls)
}

func TestCreate_IdempotentOnClientRequestID(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, newStore(t))
	in := Input{ClientRequestID: "req-1", Title: "T", Bullets: []string{"a", "b", "c"}, Script: "s"}

	first, err := tool.Create(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, first.ReusedExisting)

	second, err := tool.Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.ReusedExisting)
	assert.Equal(t, first.PresentationID, second.PresentationID)
	assert.Equal(t, 1, backend.createPresCalls, "no backend side effect on the second call (spec.md invariant 1)")
	assert.Equal(t, 1, backend.createSlideCalls)
}

func TestCreate_MultipleImageSourcesIsBadRequest(t *testing.T) {
	backend := &fakeBackend{}
	tool := New(backend, newStore(t))
	_, err := tool.Create(context.Background(), Input{
		Title: "T", Bullets: []string{"a", "b", "c"},
		ImageURL: "https://x", ImageLocalPath: "/tmp/x.png",
	})
	assert.Error(t, err)
}

func TestCreate_SpeakerNotesFallbackOnPrimaryFailure(t *testing.T) {
	backend := &fakeBackend{notesErr: assertError{}}
	tool := New(backend, newStore(t))
	_, err := tool.Create(context.Background(), Input{Title: "T", Bullets: []string{"a", "b", "c"}, Script: "s"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.fallbackCalls)
}

type assertError struct{}

func (assertError) Error() string { return "notes failed" }
