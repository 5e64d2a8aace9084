package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/anno/internal/errors"
)

// decode round-trips the tool arguments through JSON into T. Unknown argument
// names are rejected so a misspelt "label" cannot silently clear a selection.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("arguments: %v", err))
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("arguments: %v", err))
	}
	return out, nil
}
