// Package section defines the shared data model that flows between the
// summarizer, image generator, deck renderer, and orchestrator (spec.md §3).
package section

import (
	"fmt"
	"strings"
)

const (
	maxTitleChars    = 120
	maxSubtitleChars = 160
	minBullets       = 3
	maxBullets       = 8
	// DefaultMaxScriptChars is the default cap on Section.Script (spec.md §3).
	DefaultMaxScriptChars = 700
	maxImagePromptChars   = 200
)

// Section is one slide's structured content (spec.md §3).
type Section struct {
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Bullets     []string `json:"bullets"`
	Script      string   `json:"script"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
}

// Validate checks the Section invariants from spec.md §3: title/subtitle/
// script/image_prompt length bounds, and (when bullets is non-empty) that
// every bullet is non-empty after trim with 3..8 elements.
func (s Section) Validate(maxScriptChars int) error {
	if maxScriptChars <= 0 {
		maxScriptChars = DefaultMaxScriptChars
	}
	if len(s.Title) == 0 {
		return fmt.Errorf("section: title is required")
	}
	if len(s.Title) > maxTitleChars {
		return fmt.Errorf("section: title exceeds %d chars", maxTitleChars)
	}
	if len(s.Subtitle) > maxSubtitleChars {
		return fmt.Errorf("section: subtitle exceeds %d chars", maxSubtitleChars)
	}
	if len(s.Script) > maxScriptChars {
		return fmt.Errorf("section: script exceeds %d chars", maxScriptChars)
	}
	if len(s.ImagePrompt) > maxImagePromptChars {
		return fmt.Errorf("section: image_prompt exceeds %d chars", maxImagePromptChars)
	}
	if len(s.Bullets) > 0 {
		if len(s.Bullets) < minBullets || len(s.Bullets) > maxBullets {
			return fmt.Errorf("section: bullets must have %d..%d elements, got %d", minBullets, maxBullets, len(s.Bullets))
		}
		for i, b := range s.Bullets {
			if strings.TrimSpace(b) == "" {
				return fmt.Errorf("section: bullet %d is empty after trim", i)
			}
		}
	}
	return nil
}

// TruncateScript right-trims Script to maxChars, per spec.md §4.6 step 5.
func (s *Section) TruncateScript(maxChars int) {
	if maxChars <= 0 {
		maxChars = DefaultMaxScriptChars
	}
	if len(s.Script) > maxChars {
		s.Script = s.Script[:maxChars]
	}
}

// SummarizerOutput is the summarizer tool's result (spec.md §3).
type SummarizerOutput struct {
	Sections []Section `json:"sections"`
}

// Validate checks SummarizerOutput's own invariant (1..10 sections) and
// delegates to each Section.
func (o SummarizerOutput) Validate(maxScriptChars int) error {
	if len(o.Sections) < 1 || len(o.Sections) > 10 {
		return fmt.Errorf("summarizer output: sections must have 1..10 elements, got %d", len(o.Sections))
	}
	for i, sec := range o.Sections {
		if err := sec.Validate(maxScriptChars); err != nil {
			return fmt.Errorf("summarizer output: section %d: %w", i, err)
		}
	}
	return nil
}

// ImageArtifactKind is the tagged-variant discriminator for ImageArtifact.
type ImageArtifactKind string

const (
	ImageKindLocal  ImageArtifactKind = "local"
	ImageKindURL    ImageArtifactKind = "url"
	ImageKindHandle ImageArtifactKind = "handle"
)

// ImageArtifact is the image generator's output: exactly one transport form
// per call (spec.md §3).
type ImageArtifact struct {
	Kind  ImageArtifactKind `json:"kind"`
	Value string            `json:"value"`
}

// DeckRef identifies a presentation and its slides (spec.md §3).
type DeckRef struct {
	PresentationID string   `json:"presentation_id"`
	URL            string   `json:"url"`
	SlideIDs       []string `json:"slide_ids"`
}
