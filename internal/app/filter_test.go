package app

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

var allStates = []engine.State{
	engine.StateInitializing,
	engine.StateDownloading,
	engine.StateSeeding,
	engine.StatePaused,
	engine.StateError,
}

func randomViews(r *rand.Rand, n int) []TorrentView {
	views := make([]TorrentView, n)
	for i := range views {
		views[i] = TorrentView{
			ID:     engine.ID(string(rune('a'+i%26)) + string(rune('0'+i/26))),
			Status: allStates[r.Intn(len(allStates))],
		}
	}
	return views
}

func TestVisibleListMatchesAndKeepsOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		all := randomViews(r, r.Intn(40))
		for _, f := range Filters {
			visible := VisibleList(all, f)

			// exactly the matching torrents, in the original relative order
			var want []TorrentView
			for _, v := range all {
				if f == FilterAll || f.Matches(v) {
					want = append(want, v)
				}
			}
			if len(want) == 0 {
				assert.Empty(t, visible)
			} else {
				assert.Equal(t, want, visible)
			}
			assert.Equal(t, visible, VisibleList(all, f), "deterministic")
		}
		assert.Len(t, VisibleList(all, FilterAll), len(all))
	}
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		filter Filter
		state  engine.State
		want   bool
	}{
		{FilterAll, engine.StateInitializing, true},
		{FilterDownloading, engine.StateDownloading, true},
		{FilterDownloading, engine.StateInitializing, false},
		{FilterSeeding, engine.StateSeeding, true},
		{FilterPaused, engine.StatePaused, true},
		{FilterPaused, engine.StateError, false},
		{FilterError, engine.StateError, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.filter.Matches(TorrentView{Status: tt.state}), "%s/%s", tt.filter, tt.state)
	}
}

func TestFilterNextCycles(t *testing.T) {
	f := FilterAll
	var seen []Filter
	for range Filters {
		seen = append(seen, f)
		f = f.Next()
	}
	assert.Equal(t, Filters, seen)
	assert.Equal(t, FilterAll, f)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("seeding")
	require.NoError(t, err)
	assert.Equal(t, FilterSeeding, f)

	f, err = ParseFilter("ERROR")
	require.NoError(t, err)
	assert.Equal(t, FilterError, f)

	_, err = ParseFilter("stalled")
	assert.Error(t, err)
}

func TestCountByFilter(t *testing.T) {
	views := []TorrentView{
		{Status: engine.StateDownloading},
		{Status: engine.StateDownloading},
		{Status: engine.StatePaused},
		{Status: engine.StateInitializing},
	}
	counts := CountByFilter(views)
	assert.Equal(t, 4, counts[FilterAll])
	assert.Equal(t, 2, counts[FilterDownloading])
	assert.Equal(t, 0, counts[FilterSeeding])
	assert.Equal(t, 1, counts[FilterPaused])
	assert.Equal(t, 0, counts[FilterError])
}

func TestClampSelection(t *testing.T) {
	assert.Equal(t, NoSelection, ClampSelection(3, 0))
	assert.Equal(t, NoSelection, ClampSelection(NoSelection, 0))
	assert.Equal(t, 0, ClampSelection(NoSelection, 2))
	assert.Equal(t, 1, ClampSelection(5, 2))
	assert.Equal(t, 1, ClampSelection(1, 2))
}

func TestSelectionStaysInBoundsAcrossFilterChanges(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	eng := newFakeEngine()
	h := newHarness(t, eng, t.TempDir())

	for round := 0; round < 30; round++ {
		eng.list = eng.list[:0]
		for _, v := range randomViews(r, r.Intn(12)) {
			eng.list = append(eng.list, status(string(v.ID), "t", v.Status))
		}
		h.refresh()

		for step := 0; step < 10; step++ {
			switch r.Intn(4) {
			case 0:
				h.key("f")
			case 1:
				h.key("j")
			case 2:
				h.key("k")
			default:
				h.key(string(rune('1' + r.Intn(5))))
			}
			n := len(h.m.Visible())
			if n == 0 {
				require.Equal(t, NoSelection, h.m.SelectedIndex())
			} else {
				require.GreaterOrEqual(t, h.m.SelectedIndex(), 0)
				require.Less(t, h.m.SelectedIndex(), n)
			}
		}
	}
}

func TestNewTorrentViewClamps(t *testing.T) {
	v := NewTorrentView(engine.Status{ID: "x", Progress: 1.5, DownSpeed: -3, UpSpeed: -1})
	assert.Equal(t, 1.0, v.Progress)
	assert.Zero(t, v.DownSpeed)
	assert.Zero(t, v.UpSpeed)

	assert.Equal(t, "0123456789ab", TorrentView{InfoHash: "0123456789abcdef"}.DisplayName())
	assert.Equal(t, "x", TorrentView{ID: "x"}.DisplayName())
}
