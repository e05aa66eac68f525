package utils

import (
	"sort"
	"strconv"
	"strings"

	"client-telemetry/pkg/diagnostics"
)

type KindCount struct {
	Kind  diagnostics.EventKind
	Count uint64
}

// SortKindsByCount sorts event kinds by count (descending), then by kind
// (ascending). Zero counts are dropped.
func SortKindsByCount(counts map[diagnostics.EventKind]uint64) []KindCount {
	var kindCounts []KindCount
	for kind, count := range counts {
		if count == 0 {
			continue
		}
		kindCounts = append(kindCounts, KindCount{Kind: kind, Count: count})
	}

	sort.Slice(kindCounts, func(i, j int) bool {
		if kindCounts[i].Count == kindCounts[j].Count {
			return kindCounts[i].Kind < kindCounts[j].Kind
		}
		return kindCounts[i].Count > kindCounts[j].Count
	})

	return kindCounts
}

// TopKinds formats the n most frequent kinds as "kind=count" pairs.
func TopKinds(counts map[diagnostics.EventKind]uint64, n int) string {
	sorted := SortKindsByCount(counts)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	parts := make([]string, len(sorted))
	for i, kc := range sorted {
		parts[i] = string(kc.Kind) + "=" + FormatNumber(kc.Count)
	}
	return strings.Join(parts, " ")
}

// FormatNumber formats a number with comma separators for readability
func FormatNumber(n uint64) string {
	str := strconv.FormatUint(n, 10)
	if len(str) <= 3 {
		return str
	}

	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// FormatMs renders an optional millisecond value, "-" when absent.
func FormatMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + "ms"
}
