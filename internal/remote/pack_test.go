package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey pads a short marker to the textual key length, using the
// first character as the size-class group.
func testKey(group, marker string) string {
	return group + marker + strings.Repeat("0", keyFieldLen-1-len(marker))
}

func TestPackUnpackLayer(t *testing.T) {
	objects := map[string][]byte{
		testKey("5", "a"): []byte("first object"),
		testKey("5", "b"): {},
		testKey("6", "c"): []byte("third"),
	}

	packed := PackLayer(objects)
	unpacked, err := UnpackLayer(packed)
	require.NoError(t, err)
	assert.Equal(t, objects, unpacked)
}

func TestPackLayerDeterministic(t *testing.T) {
	objects := map[string][]byte{
		testKey("5", "a"): []byte("one"),
		testKey("5", "b"): []byte("two"),
		testKey("5", "c"): []byte("three"),
	}
	assert.Equal(t, PackLayer(objects), PackLayer(objects))
}

func TestUnpackLayerTruncated(t *testing.T) {
	packed := PackLayer(map[string][]byte{
		testKey("5", "a"): []byte("some payload"),
	})

	_, err := UnpackLayer(packed[:len(packed)-4])
	require.Error(t, err)
}

func TestGroupBySizeClass(t *testing.T) {
	objects := map[string][]byte{
		testKey("5", "a"): []byte("x"),
		testKey("5", "b"): []byte("y"),
		testKey("9", "c"): []byte("z"),
	}

	byGroup := GroupBySizeClass(objects)
	require.Len(t, byGroup, 2)
	assert.Len(t, byGroup["5"], 2)
	assert.Len(t, byGroup["9"], 1)

	sizes := GroupSizes(byGroup)
	assert.Equal(t, int64(2), sizes["5"])
	assert.Equal(t, int64(1), sizes["9"])
}

func TestBuildLayerPlanCombinesSmallGroups(t *testing.T) {
	plan := BuildLayerPlan(map[string]int64{
		"1": 100,
		"2": 200,
		"3": 300,
	})
	require.Len(t, plan, 1, "small groups share one layer")
	assert.Equal(t, []string{"1", "2", "3"}, plan[0])
}

func TestBuildLayerPlanSplitsLargeGroups(t *testing.T) {
	plan := BuildLayerPlan(map[string]int64{
		"1": LayerSoftMax,
		"2": LayerSoftMax,
	})
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"1"}, plan[0])
	assert.Equal(t, []string{"2"}, plan[1])
}

func TestCollectGroupObjects(t *testing.T) {
	byGroup := GroupBySizeClass(map[string][]byte{
		testKey("5", "a"): []byte("x"),
		testKey("9", "b"): []byte("y"),
	})

	merged := CollectGroupObjects([]string{"5", "9"}, byGroup)
	assert.Len(t, merged, 2)

	only := CollectGroupObjects([]string{"9"}, byGroup)
	assert.Len(t, only, 1)
}
