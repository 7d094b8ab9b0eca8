package agent

import "regexp"

var modelHints = []struct {
	pattern *regexp.Regexp
	model   string
}{
	{regexp.MustCompile(`(?i)\b(usa|use|utiliza|con|with)\s+(openai|gpt-4o|gpt-4|gpt4|gpt)\b`), "gpt-4o"},
	{regexp.MustCompile(`(?i)\b(usa|use|utiliza|con|with)\s+(gemini|google)\b`), "gemini-pro"},
	{regexp.MustCompile(`(?i)\b(usa|use|utiliza|con|with)\s+(bedrock|nova|aws)\b`), "bedrock-nova-pro"},
	{regexp.MustCompile(`(?i)\b(usa|use|utiliza|con|with)\s+(claude|anthropic)\b`), "claude-sonnet"},
}

// InferModel picks a model from phrases like "use gemini" or "usa gpt".
// It returns "" when the input names no model.
func InferModel(input string) string {
	for _, hint := range modelHints {
		if hint.pattern.MatchString(input) {
			return hint.model
		}
	}
	return ""
}
