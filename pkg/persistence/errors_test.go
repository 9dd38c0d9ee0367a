package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrStaleWrite)
		assert.NotNil(t, persistence.ErrDuplicateKey)
		assert.NotNil(t, persistence.ErrNotFound)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		staleErr := persistence.NewEntityError("Update", "form_response", "response-123", persistence.ErrStaleWrite)
		dupErr := persistence.NewEntityError("Save", "step", "step-456", persistence.ErrDuplicateKey)

		assert.True(t, persistence.IsStaleWrite(staleErr))
		assert.True(t, persistence.IsDuplicateKey(dupErr))
		assert.False(t, persistence.IsNotFound(dupErr))

		assert.True(t, errors.Is(staleErr, persistence.ErrStaleWrite))
		assert.True(t, errors.Is(dupErr, persistence.ErrDuplicateKey))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("Update", "form_response", "response-123", persistence.ErrStaleWrite)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "form_response")
		assert.Contains(t, err.Error(), "response-123")
		assert.Contains(t, err.Error(), "stale write")
	})
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name    string
		window  persistence.Pagination
		want    []int
		hasNext bool
	}{
		{name: "first page", window: persistence.Pagination{Limit: 2}, want: []int{1, 2}, hasNext: true},
		{name: "middle page", window: persistence.Pagination{Limit: 2, Offset: 2}, want: []int{3, 4}, hasNext: true},
		{name: "last page", window: persistence.Pagination{Limit: 2, Offset: 4}, want: []int{5}, hasNext: false},
		{name: "offset past end", window: persistence.Pagination{Limit: 2, Offset: 9}, want: []int{}, hasNext: false},
		{name: "no limit", window: persistence.Pagination{}, want: items, hasNext: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := persistence.Paginate(items, tt.window)

			assert.Equal(t, tt.want, page.Items)
			assert.Equal(t, int64(5), page.TotalCount)
			assert.Equal(t, tt.hasNext, page.HasNextPage)
		})
	}
}
