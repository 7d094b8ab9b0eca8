package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/harun/conduit/pkg/llm"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	toolCallMarker  = regexp.MustCompile(`(?m)^[ \t]*TOOL_CALL:[ \t]*(.*)$`)
	argumentsMarker = regexp.MustCompile(`(?m)^[ \t]*ARGUMENTS:`)
	toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// ParseToolCalls extracts TOOL_CALL/ARGUMENTS pairs from a text reply.
// A reply with any malformed pair yields no requests and is treated as prose.
// A TOOL_CALL without ARGUMENTS gets empty arguments.
func ParseToolCalls(text string) []llm.ToolRequest {
	matches := toolCallMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	requests := make([]llm.ToolRequest, 0, len(matches))
	for i, m := range matches {
		name := strings.TrimSpace(text[m[2]:m[3]])
		name = strings.Trim(name, "`*\"'")
		if !toolNamePattern.MatchString(name) {
			return nil
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segment := text[m[1]:end]

		args := map[string]interface{}{}
		if loc := argumentsMarker.FindStringIndex(segment); loc != nil {
			dec := json.NewDecoder(strings.NewReader(segment[loc[1]:]))
			if err := dec.Decode(&args); err != nil || args == nil {
				return nil
			}
		}

		requests = append(requests, llm.ToolRequest{
			ID:        newCallID(),
			Name:      name,
			Arguments: args,
		})
	}
	return requests
}

func newCallID() string {
	id, _ := gonanoid.New()
	return "call_" + id
}

// ensureCallIDs fills missing ids and replaces duplicates so ids are unique within one reply
func ensureCallIDs(requests []llm.ToolRequest) []llm.ToolRequest {
	seen := make(map[string]bool, len(requests))
	out := make([]llm.ToolRequest, len(requests))
	for i, req := range requests {
		if req.ID == "" || seen[req.ID] {
			req.ID = newCallID()
		}
		if req.Arguments == nil {
			req.Arguments = map[string]interface{}{}
		}
		seen[req.ID] = true
		out[i] = req
	}
	return out
}
