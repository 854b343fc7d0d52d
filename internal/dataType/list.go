package dataType

import (
	"sort"
	"strconv"
	"strings"
)

// ParseList splits a comma separated column into trimmed, non-empty entries.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList is the inverse of ParseList.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// ParseIntList reads a column like "1,2,3"; entries that are not integers are dropped.
func ParseIntList(s string) []int {
	var out []int
	for _, p := range ParseList(s) {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func JoinIntList(items []int) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// SortRules orders rules by priority, highest first, keeping stored order on ties.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
