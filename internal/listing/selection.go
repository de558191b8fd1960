package listing

import "sort"

// Selection tracks the selected row ids of a list view. It is not safe for concurrent use.
type Selection struct {
	selected map[string]struct{}
	page     []string
	onPage   map[string]struct{}
	retain   bool
}

// NewSelection returns an empty selection. With retain set, selections survive page changes.
func NewSelection(retain bool) *Selection {
	return &Selection{
		selected: map[string]struct{}{},
		onPage:   map[string]struct{}{},
		retain:   retain,
	}
}

// Retaining reports whether selections are kept across pages.
func (s *Selection) Retaining() bool {
	return s.retain
}

// Rebase records the ids of a freshly fetched page. Without retention the selection is cleared.
func (s *Selection) Rebase(pageIDs []string) {
	s.page = append(s.page[:0], pageIDs...)
	s.onPage = make(map[string]struct{}, len(pageIDs))
	for _, id := range pageIDs {
		s.onPage[id] = struct{}{}
	}
	if !s.retain {
		s.selected = map[string]struct{}{}
	}
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Selection) Toggle(id string) (bool, error) {
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false, nil
	}
	if _, ok := s.onPage[id]; !ok && !s.retain {
		return false, ErrNotOnPage
	}
	s.selected[id] = struct{}{}
	return true, nil
}

// SelectAll selects every id of the current page. Without retention the result is exactly
// the current page; with retention the page is added to earlier selections.
func (s *Selection) SelectAll() {
	if !s.retain {
		s.selected = make(map[string]struct{}, len(s.page))
	}
	for _, id := range s.page {
		s.selected[id] = struct{}{}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.selected = map[string]struct{}{}
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	_, ok := s.selected[id]
	return ok
}

// Count returns the number of selected ids.
func (s *Selection) Count() int {
	return len(s.selected)
}

// IDs returns the selected ids sorted.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AllOnPage reports whether every row of the current page is selected.
func (s *Selection) AllOnPage() bool {
	if len(s.page) == 0 {
		return false
	}
	for _, id := range s.page {
		if _, ok := s.selected[id]; !ok {
			return false
		}
	}
	return true
}
