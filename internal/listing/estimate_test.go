package listing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	cases := []struct {
		name     string
		page     int
		returned int
		prev     Estimation
		want     Estimation
	}{
		{name: "empty first page", page: 1, returned: 0, want: Estimation{Pages: 0, Settled: true}},
		{name: "overshoot", page: 3, returned: 0, prev: Estimation{Pages: 5}, want: Estimation{Pages: 2, Settled: true}},
		{name: "short page is last", page: 4, returned: 7, prev: Estimation{Pages: 5}, want: Estimation{Pages: 4, Settled: true}},
		{name: "full page grows", page: 1, returned: 15, want: Estimation{Pages: 2}},
		{name: "full page keeps larger estimate", page: 2, returned: 15, prev: Estimation{Pages: 6}, want: Estimation{Pages: 6}},
		{name: "full page after settle", page: 3, returned: 15, prev: Estimation{Pages: 3, Settled: true}, want: Estimation{Pages: 3, Settled: true}},
		{name: "page below one", page: 0, returned: 15, want: Estimation{Pages: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Estimate(tc.page, 15, tc.returned, tc.prev))
		})
	}
}

func TestEstimateNeverGrowsOnceSettled(t *testing.T) {
	est := Estimation{}
	est = Estimate(1, 15, 15, est)
	est = Estimate(2, 15, 15, est)
	est = Estimate(3, 15, 4, est)
	require.Equal(t, Estimation{Pages: 3, Settled: true}, est)

	for _, obs := range []struct{ page, n int }{{1, 15}, {2, 15}, {3, 15}, {2, 15}, {1, 15}} {
		next := Estimate(obs.page, 15, obs.n, est)
		require.LessOrEqual(t, next.Pages, est.Pages)
		est = next
	}
	require.Equal(t, 3, est.Pages)
}

func TestEstimationTotalCount(t *testing.T) {
	require.Equal(t, 45, Estimation{Pages: 3}.TotalCount(15))
	require.Zero(t, Estimation{}.TotalCount(15))
}
