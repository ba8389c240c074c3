package timetable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenPreservesOrder(t *testing.T) {
	nested := []WeekNode{
		Week(3),
		Group(Week(1), Week(2)),
		Group(Group(Week(5)), Week(4)),
	}
	assert.Equal(t, []int{3, 1, 2, 5, 4}, Flatten(nested))
}

func TestFlattenDoesNotDeduplicate(t *testing.T) {
	nested := []WeekNode{Week(1), Group(Week(1), Week(2))}
	assert.Equal(t, []int{1, 1, 2}, Flatten(nested))
}

func TestFlattenIdempotent(t *testing.T) {
	nested := []WeekNode{Week(2), Group(Week(7), Group(Week(1)))}
	once := Flatten(nested)

	// Re-wrapping the flat result and flattening again changes nothing.
	reflat := make([]WeekNode, len(once))
	for i, w := range once {
		reflat[i] = Week(w)
	}
	assert.Equal(t, once, Flatten(reflat))
}

func TestFlattenEmpty(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	assert.Empty(t, Flatten([]WeekNode{Group()}))
}

func TestWeekNodeJSON(t *testing.T) {
	var nodes []WeekNode
	require.NoError(t, json.Unmarshal([]byte(`[1,[2,3],[[4]],5]`), &nodes))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Flatten(nodes))

	out, err := json.Marshal(nodes)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,[2,3],[[4]],5]`, string(out))
}

func TestWeekNodeJSONRejectsNonInt(t *testing.T) {
	var nodes []WeekNode
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &nodes))
}
