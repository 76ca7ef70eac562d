package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidPageRange is returned for malformed page range strings.
var ErrInvalidPageRange = errors.New("invalid page range")

// ParsePageRange expands a spec like "1-5,7,9-12" into sorted, unique,
// 1-indexed page numbers. Pages past total are dropped. An empty spec
// selects every page.
func ParsePageRange(spec string, total int) ([]int, error) {
	if total <= 0 {
		return nil, ErrNoPages
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end, err := parseSpan(part)
		if err != nil {
			return nil, err
		}
		for p := start; p <= min(end, total); p++ {
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %q matches none of %d pages", ErrNoPages, spec, total)
	}
	return pages, nil
}

func parseSpan(part string) (int, int, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || start < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPageRange, part)
	}
	if !isRange {
		return start, start, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPageRange, part)
	}
	return start, end, nil
}
