package section

import (
	"encoding/json"
	"strconv"
)

// legacySection mirrors Section's fields for the top-level single-section
// legacy wire form (spec.md §3: "A legacy single-section form... is
// accepted and normalized into sections=[that]").
type legacySection struct {
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Bullets     []string `json:"bullets"`
	Script      string   `json:"script"`
	ImagePrompt string   `json:"image_prompt"`
}

// NormalizeSummarizerJSON parses raw backend JSON into a SummarizerOutput,
// accepting three wire shapes: a `{sections:[...]}` object, a bare legacy
// Section object promoted to a single-element list, or a single-element
// array wrapping either shape (spec.md §4.6 step 4, §9 "one-or-list").
func NormalizeSummarizerJSON(raw []byte) (SummarizerOutput, error) {
	// One-or-list: a JSON array wrapping the object form.
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		if len(asList) != 1 {
			return SummarizerOutput{}, &oneOrListError{got: len(asList)}
		}
		return NormalizeSummarizerJSON(asList[0])
	}

	var withSections struct {
		Sections []Section `json:"sections"`
	}
	if err := json.Unmarshal(raw, &withSections); err == nil && withSections.Sections != nil {
		return SummarizerOutput{Sections: withSections.Sections}, nil
	}

	var legacy legacySection
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return SummarizerOutput{}, err
	}
	return SummarizerOutput{Sections: []Section{{
		Title:       legacy.Title,
		Subtitle:    legacy.Subtitle,
		Bullets:     legacy.Bullets,
		Script:      legacy.Script,
		ImagePrompt: legacy.ImagePrompt,
	}}}, nil
}

type oneOrListError struct{ got int }

func (e *oneOrListError) Error() string {
	return "one-or-list: expected exactly 1 element, got " + strconv.Itoa(e.got)
}
