package bridge

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestComputeRecordPatchReplace(t *testing.T) {
	before := Record{"id": "shape:abc", "x": 1, "y": 5}
	after := Record{"id": "shape:abc", "x": 2, "y": 5}

	ops, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(ops))
	assert.Equal(t, "replace", string(ops[0].Operation))
	assert.Equal(t, "/x", ops[0].Path)
	assert.Equal(t, 2, ops[0].Value)
}

func TestComputeRecordPatchAddRemoveFields(t *testing.T) {
	before := Record{"id": "shape:abc", "old": true}
	after := Record{"id": "shape:abc", "fresh": "yes"}

	ops, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(ops))

	// fields are visited in sorted name order
	assert.Equal(t, "add", string(ops[0].Operation))
	assert.Equal(t, "/fresh", ops[0].Path)
	assert.Equal(t, "yes", ops[0].Value)

	assert.Equal(t, "remove", string(ops[1].Operation))
	assert.Equal(t, "/old", ops[1].Path)
}

func TestComputeRecordPatchNested(t *testing.T) {
	before := Record{
		"id": "shape:abc",
		"props": map[string]any{
			"color": "red",
			"size":  1,
		},
	}
	after := Record{
		"id": "shape:abc",
		"props": map[string]any{
			"color": "blue",
			"size":  1,
		},
	}

	ops, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(ops))
	assert.Equal(t, "replace", string(ops[0].Operation))
	assert.Equal(t, "/props/color", ops[0].Path)
	assert.Equal(t, "blue", ops[0].Value)
}

func TestComputeRecordPatchArrays(t *testing.T) {
	before := Record{
		"id":  "instance_page_state:x",
		"ids": []any{"a", "b"},
	}
	after := Record{
		"id":  "instance_page_state:x",
		"ids": []any{"a", "b", "c"},
	}

	ops, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	assert.NotEqual(t, 0, len(ops))
}

func TestComputeRecordPatchDeterministic(t *testing.T) {
	before := Record{"id": "shape:abc", "a": 1, "b": 2, "c": 3, "d": 4}
	after := Record{"id": "shape:abc", "a": 9, "b": 2, "c": 7, "e": 5}

	first, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	for i := 0; i < 10; i += 1 {
		again, err := ComputeRecordPatch(before, after)
		assert.Equal(t, nil, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeRecordPatchNoChange(t *testing.T) {
	before := Record{"id": "shape:abc", "x": 1}
	after := Record{"id": "shape:abc", "x": 1}

	ops, err := ComputeRecordPatch(before, after)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(ops))
}

func TestUpdateBatchEmpty(t *testing.T) {
	batch := NewUpdateBatch()
	assert.Equal(t, true, batch.Empty())

	batch.Removed = append(batch.Removed, "shape:abc")
	assert.Equal(t, false, batch.Empty())
}
