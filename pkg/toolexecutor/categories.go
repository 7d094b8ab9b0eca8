package toolexecutor

import "sort"

// ToolCategory groups related tools in the toolbox health report
type ToolCategory string

const (
	CategoryMath    ToolCategory = "math"
	CategoryText    ToolCategory = "text"
	CategoryGeneral ToolCategory = "general"
)

func (c ToolCategory) valid() bool {
	switch c {
	case "", CategoryMath, CategoryText, CategoryGeneral:
		return true
	}
	return false
}

// Categories returns the sorted tool names of every non-empty category.
// Tools registered without a category count as general.
func (te *ToolExecutor) Categories() map[ToolCategory][]string {
	te.mu.RLock()
	out := make(map[ToolCategory][]string)
	for name, tool := range te.tools {
		cat := tool.Category
		if cat == "" {
			cat = CategoryGeneral
		}
		out[cat] = append(out[cat], name)
	}
	te.mu.RUnlock()

	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
