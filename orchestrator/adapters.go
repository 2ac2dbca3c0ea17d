package orchestrator

import (
	"context"

	"github.com/deckgen/deckgen/data/query"
	"github.com/deckgen/deckgen/section"
	"github.com/deckgen/deckgen/tools/imagegen"
	"github.com/deckgen/deckgen/tools/summarizer"
)

// SummarizerAdapter wraps tools/summarizer.Tool to satisfy Summarizer.
type SummarizerAdapter struct {
	Tool           *summarizer.Tool
	MaxBullets     int
	MaxScriptChars int
	MaxSections    int
}

func (a SummarizerAdapter) Summarize(ctx context.Context, in SummarizeInput) (section.SummarizerOutput, error) {
	return a.Tool.Summarize(ctx, summarizer.Input{
		ReportText:     in.ReportText,
		ModelID:        in.ModelID,
		MaxBullets:     a.MaxBullets,
		MaxScriptChars: a.MaxScriptChars,
		MaxSections:    a.MaxSections,
	})
}

// ImageGeneratorAdapter wraps tools/imagegen.Tool to satisfy ImageGenerator.
type ImageGeneratorAdapter struct {
	Tool   *imagegen.Tool
	Aspect string
}

func (a ImageGeneratorAdapter) Generate(ctx context.Context, prompt string) (section.ImageArtifact, error) {
	return a.Tool.Generate(ctx, imagegen.Input{Prompt: prompt, Aspect: a.Aspect})
}

// DataQueryAdapter wraps data/query.Tool to satisfy DataQuery.
type DataQueryAdapter struct {
	Tool *query.Tool
}

func (a DataQueryAdapter) Ask(ctx context.Context, datasetID, question string) (DataAnswer, error) {
	res, err := a.Tool.Ask(ctx, query.Input{DatasetID: datasetID, Question: question})
	if err != nil {
		return DataAnswer{}, err
	}
	return DataAnswer{ChartPNGPath: res.ChartPNGPath, Insights: res.Insights}, nil
}
