package pagination_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pixelscan/service/internal/pagination"
)

func TestNewPageMetadata(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		page        int
		pageSize    int
		wantPages   int
		wantNext    bool
		wantPrev    bool
	}{
		{"empty", 0, 1, 10, 0, false, false},
		{"single full page", 10, 1, 10, 1, false, false},
		{"partial last page", 11, 1, 10, 2, true, false},
		{"middle page", 50, 3, 10, 5, true, true},
		{"last page", 50, 5, 10, 5, false, true},
		{"past the end", 10, 4, 10, 1, false, true},
		{"zero page size", 10, 1, 0, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pagination.NewPage([]string{}, tt.total, tt.page, tt.pageSize)
			require.Equal(t, tt.wantPages, p.Pages)
			require.Equal(t, tt.wantNext, p.HasNext)
			require.Equal(t, tt.wantPrev, p.HasPrevious)
		})
	}
}

func TestNewPageNilItemsBecomesEmptySlice(t *testing.T) {
	p := pagination.NewPage[int](nil, 0, 1, 10)
	require.NotNil(t, p.Items)
	require.Empty(t, p.Items)
}

func TestNewPageCarriesItems(t *testing.T) {
	p := pagination.NewPage([]int{1, 2, 3}, 7, 2, 3)
	require.Equal(t, []int{1, 2, 3}, p.Items)
	require.Equal(t, int64(7), p.Total)
	require.Equal(t, 3, p.Pages)
	require.True(t, p.HasNext)
	require.True(t, p.HasPrevious)
}
