package assessment

import "strings"

// MergePriorities keeps the existing ranking for values that are still
// selected and appends newly selected values in selection order.
func MergePriorities(prioritized, selected []string) []string {
	selectedSet := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		selectedSet[id] = struct{}{}
	}
	out := make([]string, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	for _, id := range prioritized {
		if _, ok := selectedSet[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range selected {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func uniqueIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cleanReflections(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for id, text := range values {
		id = strings.TrimSpace(id)
		if id == "" || strings.TrimSpace(text) == "" {
			continue
		}
		out[id] = text
	}
	return out
}

func cloneIDs(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneReflections(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for id, text := range values {
		out[id] = text
	}
	return out
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func removeAt(values []string, idx int) []string {
	out := make([]string, 0, len(values)-1)
	out = append(out, values[:idx]...)
	return append(out, values[idx+1:]...)
}
