package jsonrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolError_Error(t *testing.T) {
	err := &ToolError{Code: CodeToolError, Message: "BadRequest: missing field"}
	assert.Equal(t, "tool error -32000: BadRequest: missing field", err.Error())
}
