package listing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func pageIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("A-%02d", i+1)
	}
	return ids
}

func TestSelectAllAndClearCounts(t *testing.T) {
	for _, n := range []int{0, 1, 7, 15} {
		s := NewSelection(false)
		s.Rebase(pageIDs(n))
		s.SelectAll()
		require.Equal(t, n, s.Count())
		s.SelectAll()
		require.Equal(t, n, s.Count(), "select all must be idempotent")
		s.Clear()
		require.Zero(t, s.Count())
	}
}

func TestToggleTwiceRestores(t *testing.T) {
	s := NewSelection(false)
	s.Rebase(pageIDs(5))
	_, err := s.Toggle("A-02")
	require.NoError(t, err)
	before := s.IDs()

	on, err := s.Toggle("A-04")
	require.NoError(t, err)
	require.True(t, on)
	on, err = s.Toggle("A-04")
	require.NoError(t, err)
	require.False(t, on)
	require.Equal(t, before, s.IDs())
}

func TestToggleOffPage(t *testing.T) {
	s := NewSelection(false)
	s.Rebase(pageIDs(3))
	_, err := s.Toggle("B-01")
	require.ErrorIs(t, err, ErrNotOnPage)
	require.Zero(t, s.Count())
}

func TestRebaseClearsUnlessRetaining(t *testing.T) {
	s := NewSelection(false)
	s.Rebase(pageIDs(3))
	s.SelectAll()
	s.Rebase([]string{"B-01", "B-02"})
	require.Zero(t, s.Count())

	r := NewSelection(true)
	r.Rebase(pageIDs(3))
	r.SelectAll()
	r.Rebase([]string{"B-01", "B-02"})
	require.Equal(t, 3, r.Count())
	r.SelectAll()
	require.Equal(t, 5, r.Count())
	require.True(t, r.AllOnPage())
}

func TestPanelVisibility(t *testing.T) {
	s := NewSelection(false)
	s.Rebase(pageIDs(2))
	require.False(t, panelFor(s).Visible)
	_, err := s.Toggle("A-01")
	require.NoError(t, err)
	p := panelFor(s)
	require.True(t, p.Visible)
	require.Equal(t, 1, p.Count)
	require.Equal(t, PanelActions, p.Actions)
}
