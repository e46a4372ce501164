package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"talkmubio-backend/internal/openai"
	"talkmubio-backend/internal/story"
)

const imageModel = "dall-e-3"

// ImageAPI is the generative surface the image service needs.
type ImageAPI interface {
	GenerateImage(ctx context.Context, prompt string, opts openai.ImageOptions) (string, error)
}

// BlobStore persists rendered images and returns a durable public URL.
// Generated-image URLs from the model are short-lived, so bytes are copied
// into our own bucket before the reference is stored.
type BlobStore interface {
	SavePNG(ctx context.Context, name string, data []byte) (string, error)
}

// Generator renders illustrative story images and re-hosts them. It
// implements reconcile.ImageGenerator.
type Generator struct {
	llm        ImageAPI
	blobs      BlobStore
	httpClient *http.Client
}

func NewGenerator(llm ImageAPI, blobs BlobStore) *Generator {
	return &Generator{
		llm:        llm,
		blobs:      blobs,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// StoryImage renders a story illustration and returns its re-hosted URL.
func (g *Generator) StoryImage(ctx context.Context, summary string, cat story.Category) (string, error) {
	url, err := g.llm.GenerateImage(ctx, storyImagePrompt(summary, cat), openai.ImageOptions{
		Model:   imageModel,
		Size:    "1024x1024",
		Quality: "hd",
		Style:   "vivid",
	})
	if err != nil {
		return "", fmt.Errorf("images: generate story image: %w", err)
	}
	return g.rehost(ctx, url)
}

// CoverImage renders a book cover from its description.
func (g *Generator) CoverImage(ctx context.Context, coverDescription string) (string, error) {
	prompt := fmt.Sprintf("Create a nostalgic, emotional image of the book that represents this family story: %s.\nMake it warm, inviting, and suitable for a family memory book.", coverDescription)
	url, err := g.llm.GenerateImage(ctx, prompt, openai.ImageOptions{Size: "1024x1024"})
	if err != nil {
		return "", fmt.Errorf("images: generate cover image: %w", err)
	}
	return g.rehost(ctx, url)
}

func (g *Generator) rehost(ctx context.Context, srcURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("images: fetch request: %w", err)
	}
	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("images: fetch generated image: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("images: fetch generated image: status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("images: read generated image: %w", err)
	}

	name := "images/" + uuid.NewString() + ".png"
	publicURL, err := g.blobs.SavePNG(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("images: store image: %w", err)
	}
	return publicURL, nil
}

func storyImagePrompt(summary string, cat story.Category) string {
	var b strings.Builder
	b.WriteString("Create a high-quality, nostalgic image that visually represents this family story:\n\n")
	fmt.Fprintf(&b, "**Story Summary:** %s\n\n", summary)
	fmt.Fprintf(&b, "**Category:** %s\n\n", cat.Title)
	b.WriteString("**Style Guidelines:**\n")
	b.WriteString("- Warm, emotional, and inviting atmosphere\n")
	b.WriteString("- Suitable for a family memory book\n")
	b.WriteString("- Photorealistic or high-quality illustration style\n")
	b.WriteString("- Soft lighting and warm color tones\n")
	b.WriteString("- Include subtle nostalgic elements\n")
	b.WriteString("- Focus on emotional connection rather than literal representation\n\n")
	b.WriteString("Avoid clichés and create a unique, meaningful image that captures the essence of the story.")
	return b.String()
}
