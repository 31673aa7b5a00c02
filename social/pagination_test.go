package social

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	tests := []struct {
		name     string
		req      PageRequest
		first    int
		size     int
		next     int
		previous int
	}{
		{"defaults", PageRequest{}, 0, DefaultPageSize, 2, 0},
		{"middle", PageRequest{Page: 2}, 10, 10, 3, 1},
		{"last partial", PageRequest{Page: 3}, 20, 5, 0, 2},
		{"custom size", PageRequest{Page: 2, PageSize: 7}, 7, 7, 3, 1},
		{"size capped", PageRequest{PageSize: 1000}, 0, 25, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := paginate(items, tt.req)
			require.NoError(t, err)
			assert.Equal(t, 25, p.Count)
			require.Len(t, p.Results, tt.size)
			assert.Equal(t, tt.first, p.Results[0])
			assert.Equal(t, tt.next, p.Next)
			assert.Equal(t, tt.previous, p.Previous)
		})
	}

	_, err := paginate(items, PageRequest{Page: 4})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = paginate(items, PageRequest{Page: math.MaxInt, PageSize: 10})
	assert.ErrorAs(t, err, &nf)

	_, err = paginate([]int{}, PageRequest{Page: 2})
	assert.ErrorAs(t, err, &nf)

	empty, err := paginate([]int{}, PageRequest{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Results)
	assert.Zero(t, empty.Count)
}
