package app

import (
	"fmt"
	"strings"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// Filter selects torrents by status.
type Filter int

const (
	FilterAll Filter = iota
	FilterDownloading
	FilterSeeding
	FilterPaused
	FilterError
)

// Filters lists every filter in cycling order.
var Filters = []Filter{FilterAll, FilterDownloading, FilterSeeding, FilterPaused, FilterError}

func (f Filter) String() string {
	switch f {
	case FilterDownloading:
		return "Downloading"
	case FilterSeeding:
		return "Seeding"
	case FilterPaused:
		return "Paused"
	case FilterError:
		return "Error"
	default:
		return "All"
	}
}

// ParseFilter maps a filter name, case-insensitively, to its Filter.
func ParseFilter(name string) (Filter, error) {
	for _, f := range Filters {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return FilterAll, fmt.Errorf("unknown filter %q", name)
}

// Next cycles forward, wrapping from Error back to All.
func (f Filter) Next() Filter {
	return Filters[(int(f)+1)%len(Filters)]
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t TorrentView) bool {
	switch f {
	case FilterDownloading:
		return t.Status == engine.StateDownloading
	case FilterSeeding:
		return t.Status == engine.StateSeeding
	case FilterPaused:
		return t.Status == engine.StatePaused
	case FilterError:
		return t.Status == engine.StateError
	default:
		return true
	}
}

// VisibleList returns the torrents matching f in their original order.
func VisibleList(all []TorrentView, f Filter) []TorrentView {
	visible := make([]TorrentView, 0, len(all))
	for _, t := range all {
		if f.Matches(t) {
			visible = append(visible, t)
		}
	}
	return visible
}

// CountByFilter counts matches for every filter.
func CountByFilter(all []TorrentView) map[Filter]int {
	counts := make(map[Filter]int, len(Filters))
	for _, f := range Filters {
		counts[f] = 0
	}
	for _, t := range all {
		for _, f := range Filters {
			if f.Matches(t) {
				counts[f]++
			}
		}
	}
	return counts
}

// NoSelection marks an empty visible list.
const NoSelection = -1

// ClampSelection keeps sel inside a list of n rows.
func ClampSelection(sel, n int) int {
	if n == 0 {
		return NoSelection
	}
	if sel < 0 {
		return 0
	}
	if sel >= n {
		return n - 1
	}
	return sel
}
