package listing

// Estimation is the inferred page count of a list whose backend does not report one.
type Estimation struct {
	Pages int `json:"pages"`
	// Settled is true once the last page has been observed.
	Settled bool `json:"settled"`
}

// TotalCount returns the derived item count estimate.
func (e Estimation) TotalCount(pageSize int) int {
	return e.Pages * pageSize
}

// Estimate infers the total page count after fetching page with pageSize and receiving
// itemsReturned items, given the previous estimate.
//
// A short or empty page settles the estimate. A full page grows an unsettled estimate to
// at least page+1; once settled, full pages leave it untouched so the estimate never
// increases again for the same query.
func Estimate(page, pageSize, itemsReturned int, prev Estimation) Estimation {
	if page < 1 {
		page = 1
	}
	switch {
	case itemsReturned == 0 && page > 1:
		return Estimation{Pages: page - 1, Settled: true}
	case itemsReturned == 0:
		return Estimation{Pages: 0, Settled: true}
	case itemsReturned < pageSize:
		return Estimation{Pages: page, Settled: true}
	}
	if prev.Settled {
		return prev
	}
	return Estimation{Pages: max(prev.Pages, page+1)}
}
