package labeling

import (
	"testing"

	"labelbot/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	t.Run("last labeler absorbs the remainder", func(t *testing.T) {
		got := Partition(10, 3)

		require.Equal(t, domain.AssignmentMap{
			"user_1": {0, 1, 2},
			"user_2": {3, 4, 5},
			"user_3": {6, 7, 8, 9},
		}, got)
	})

	t.Run("zero samples yields empty assignments", func(t *testing.T) {
		got := Partition(0, 1)

		require.Len(t, got, 1)
		require.NotNil(t, got["user_1"])
		require.Empty(t, got["user_1"])
	})

	t.Run("more labelers than samples", func(t *testing.T) {
		got := Partition(2, 4)

		require.Len(t, got, 4)
		require.Empty(t, got["user_1"])
		require.Empty(t, got["user_2"])
		require.Empty(t, got["user_3"])
		require.Equal(t, []int{0, 1}, got["user_4"])
	})

	t.Run("no labelers", func(t *testing.T) {
		require.Empty(t, Partition(5, 0))
	})

	t.Run("covers every index exactly once", func(t *testing.T) {
		for total := 0; total <= 40; total++ {
			for labelers := 1; labelers <= 9; labelers++ {
				got := Partition(total, labelers)
				require.Len(t, got, labelers)

				seen := make(map[int]int)
				for _, indices := range got {
					for _, idx := range indices {
						seen[idx]++
					}
				}
				require.Len(t, seen, total, "total=%d labelers=%d", total, labelers)
				for idx := 0; idx < total; idx++ {
					require.Equal(t, 1, seen[idx], "total=%d labelers=%d idx=%d", total, labelers, idx)
				}
			}
		}
	})
}
