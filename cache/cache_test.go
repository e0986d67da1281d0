package cache

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func TestGetMiss(t *testing.T) {
	t.Parallel()

	c := New(10)
	img, ok := c.Get(0, 1.0)
	assert.False(t, ok)
	assert.Nil(t, img)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()

	c := New(10)
	imgA := testImage()
	c.Add(3, 1.5, imgA)

	got, ok := c.Get(3, 1.5)
	require.True(t, ok)
	assert.Same(t, imgA, got)
}

func TestSizeNeverExceedsMaxSize(t *testing.T) {
	t.Parallel()

	c := New(5)
	for page := 0; page < 50; page++ {
		c.Add(page, 1.0, testImage())
		assert.LessOrEqual(t, c.Stats().Size, 5)
	}
	assert.Equal(t, 5, c.Stats().Size)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := New(2)
	imgA, imgB, imgC := testImage(), testImage(), testImage()
	c.Add(0, 1.0, imgA)
	c.Add(1, 1.0, imgB)
	c.Add(2, 1.0, imgC) // evicts page 0, the oldest untouched entry

	_, ok := c.Get(0, 1.0)
	assert.False(t, ok, "page 0 should have been evicted")

	gotB, ok := c.Get(1, 1.0)
	require.True(t, ok)
	assert.Same(t, imgB, gotB)

	gotC, ok := c.Get(2, 1.0)
	require.True(t, ok)
	assert.Same(t, imgC, gotC)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, []int{1, 2}, stats.Pages)
}

func TestGetPromotesAgainstEviction(t *testing.T) {
	t.Parallel()

	c := New(2)
	imgA, imgB, imgC := testImage(), testImage(), testImage()
	c.Add(0, 1.0, imgA)
	c.Add(1, 1.0, imgB)

	// Touch page 0 so page 1 becomes the eviction candidate.
	_, ok := c.Get(0, 1.0)
	require.True(t, ok)

	c.Add(2, 1.0, imgC)

	gotA, ok := c.Get(0, 1.0)
	require.True(t, ok, "promoted page 0 should survive eviction")
	assert.Same(t, imgA, gotA)

	_, ok = c.Get(1, 1.0)
	assert.False(t, ok, "page 1 should have been evicted")

	gotC, ok := c.Get(2, 1.0)
	require.True(t, ok)
	assert.Same(t, imgC, gotC)
}

func TestAddDuplicateKeyIsNoOp(t *testing.T) {
	t.Parallel()

	c := New(10)
	first := testImage()
	second := testImage()
	c.Add(0, 1.0, first)
	c.Add(0, 1.0, second)

	got, ok := c.Get(0, 1.0)
	require.True(t, ok)
	assert.Same(t, first, got, "first stored image wins")
	assert.Equal(t, 1, c.Stats().Size)
}

func TestDuplicateAddDoesNotRefreshRecency(t *testing.T) {
	t.Parallel()

	c := New(2)
	c.Add(0, 1.0, testImage())
	c.Add(1, 1.0, testImage())

	// Re-adding page 0 must not promote it.
	c.Add(0, 1.0, testImage())
	c.Add(2, 1.0, testImage())

	_, ok := c.Get(0, 1.0)
	assert.False(t, ok, "page 0 was still the LRU entry and should be gone")
}

func TestZoomRounding(t *testing.T) {
	t.Parallel()

	c := New(10)
	img := testImage()
	c.Add(0, 1.001, img)

	// 1.0049 rounds to the same 1.00 key.
	got, ok := c.Get(0, 1.0049)
	require.True(t, ok)
	assert.Same(t, img, got)

	// 1.006 rounds to 1.01 and is a distinct entry.
	_, ok = c.Get(0, 1.006)
	assert.False(t, ok)
	c.Add(0, 1.006, testImage())
	assert.Equal(t, 2, c.Stats().Size)
}

func TestRemovePageDropsAllZoomLevels(t *testing.T) {
	t.Parallel()

	c := New(10)
	c.Add(1, 1.0, testImage())
	c.Add(1, 2.0, testImage())
	c.Add(2, 1.0, testImage())

	c.RemovePage(1)

	_, ok := c.Get(1, 1.0)
	assert.False(t, ok)
	_, ok = c.Get(1, 2.0)
	assert.False(t, ok)
	_, ok = c.Get(2, 1.0)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, []int{2}, stats.Pages)
}

func TestRemoveAbsentPageIsNoOp(t *testing.T) {
	t.Parallel()

	c := New(10)
	c.Add(0, 1.0, testImage())
	c.RemovePage(42)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := New(10)
	for page := 0; page < 5; page++ {
		c.Add(page, 1.0, testImage())
	}
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Empty(t, stats.Pages)
	for page := 0; page < 5; page++ {
		_, ok := c.Get(page, 1.0)
		assert.False(t, ok)
	}
}

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	c := New(7)
	c.Add(4, 1.0, testImage())
	c.Add(2, 1.0, testImage())
	c.Add(2, 1.5, testImage())
	c.Add(9, 1.0, testImage())

	stats := c.Stats()
	assert.Equal(t, 4, stats.Size)
	assert.Equal(t, 7, stats.MaxSize)
	assert.Equal(t, []int{2, 4, 9}, stats.Pages)
}

func TestInvalidMaxSizeFallsBackToDefault(t *testing.T) {
	t.Parallel()

	c := New(0)
	assert.Equal(t, DefaultMaxSize, c.Stats().MaxSize)
}

// TestConcurrentAccess hammers the cache from multiple goroutines; run with
// -race to catch lock violations. The invariant under test is that the size
// bound holds and no operation panics, not any particular hit pattern.
func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(20)
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				page := i % 30
				switch i % 5 {
				case 0:
					c.Add(page, 1.0, testImage())
				case 1:
					c.Get(page, 1.0)
				case 2:
					c.Add(page, 1.5, testImage())
				case 3:
					c.RemovePage(page)
				default:
					c.Stats()
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, 20)
}
