package query

import (
	"context"
	"encoding/json"

	"github.com/deckgen/deckgen/internal/toolerr"
)

// Handle adapts Ask to a jsonrpc.Handler.
func (t *Tool) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var in Input
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, toolerr.Wrap(toolerr.BadRequest, "invalid data.query params", err)
	}
	if in.DatasetID == "" || in.Question == "" {
		return nil, toolerr.New(toolerr.BadRequest, "dataset_id and question are required")
	}
	return t.Ask(ctx, in)
}
