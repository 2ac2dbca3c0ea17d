package section

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSection_Validate_OK(t *testing.T) {
	s := Section{
		Title:   "Acme FinTech ETL modernization",
		Bullets: []string{"Cut infra costs", "Unify pipelines", "Improve governance"},
		Script:  "A short script.",
	}
	assert.NoError(t, s.Validate(0))
}

func TestSection_Validate_EmptyBulletAfterTrim(t *testing.T) {
	s := Section{
		Title:   "Title",
		Bullets: []string{"a", "  ", "c"},
	}
	assert.Error(t, s.Validate(0))
}

func TestSection_Validate_TooFewBullets(t *testing.T) {
	s := Section{Title: "Title", Bullets: []string{"a", "b"}}
	assert.Error(t, s.Validate(0))
}

func TestSection_Validate_ScriptTooLong(t *testing.T) {
	s := Section{Title: "Title", Script: strings.Repeat("x", 10)}
	assert.Error(t, s.Validate(5))
}

func TestSection_TruncateScript(t *testing.T) {
	s := Section{Script: strings.Repeat("x", 10)}
	s.TruncateScript(5)
	assert.Len(t, s.Script, 5)
}

func TestSummarizerOutput_Validate_BoundsSectionCount(t *testing.T) {
	var sections []Section
	for i := 0; i < 11; i++ {
		sections = append(sections, Section{Title: "T", Script: "s"})
	}
	out := SummarizerOutput{Sections: sections}
	require.Error(t, out.Validate(0))
}
