package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkmubio-backend/internal/openai"
	"talkmubio-backend/internal/story"
)

type fakeImageAPI struct {
	prompt string
	opts   openai.ImageOptions
	url    string
	err    error
}

func (f *fakeImageAPI) GenerateImage(_ context.Context, prompt string, opts openai.ImageOptions) (string, error) {
	f.prompt = prompt
	f.opts = opts
	return f.url, f.err
}

func TestStoryImageRehostsGeneratedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	api := &fakeImageAPI{url: srv.URL + "/generated.png"}
	blobs := NewMemoryBlobStore()
	gen := NewGenerator(api, blobs)

	url, err := gen.StoryImage(context.Background(), "Grandpa's first bicycle", story.Category{Title: "Childhood"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "memory://images/"), "url %q", url)
	assert.True(t, strings.HasSuffix(url, ".png"))

	name := strings.TrimPrefix(url, "memory://")
	data, ok := blobs.Blob(name)
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(data))

	assert.Contains(t, api.prompt, "Grandpa's first bicycle")
	assert.Contains(t, api.prompt, "Childhood")
	assert.Equal(t, "dall-e-3", api.opts.Model)
	assert.Equal(t, "1024x1024", api.opts.Size)
	assert.Equal(t, "hd", api.opts.Quality)
	assert.Equal(t, "vivid", api.opts.Style)
}

func TestStoryImageGenerationError(t *testing.T) {
	api := &fakeImageAPI{err: errors.New("quota exceeded")}
	gen := NewGenerator(api, NewMemoryBlobStore())

	_, err := gen.StoryImage(context.Background(), "summary", story.Category{Title: "Life"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStoryImageFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	api := &fakeImageAPI{url: srv.URL + "/expired.png"}
	gen := NewGenerator(api, NewMemoryBlobStore())

	_, err := gen.StoryImage(context.Background(), "summary", story.Category{Title: "Life"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestCoverImageUsesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("cover"))
	}))
	defer srv.Close()

	api := &fakeImageAPI{url: srv.URL + "/cover.png"}
	gen := NewGenerator(api, NewMemoryBlobStore())

	url, err := gen.CoverImage(context.Background(), "a family gathered around a kitchen table")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Contains(t, api.prompt, "a family gathered around a kitchen table")
}
