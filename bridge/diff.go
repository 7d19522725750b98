package bridge

import (
	"fmt"
	"reflect"

	"github.com/snorwin/jsonpatch"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// structural diffing of updated records. instead of shipping the full
// "after" value, each update is described as an ordered list of
// RFC 6902 field operations, which keeps outbound payloads small and
// lets the remote service apply a general patch regardless of record
// shape.

type PatchOperation = jsonpatch.JSONPatch

// UpdateBatch is one outbound document mutation:
// full records for adds, ids for removes, field patches for updates.
type UpdateBatch struct {
	Added   map[RecordId]Record           `json:"added"`
	Removed []RecordId                    `json:"removed"`
	Updated map[RecordId][]PatchOperation `json:"updated"`
}

func NewUpdateBatch() *UpdateBatch {
	return &UpdateBatch{
		Added:   map[RecordId]Record{},
		Removed: []RecordId{},
		Updated: map[RecordId][]PatchOperation{},
	}
}

func (self *UpdateBatch) Empty() bool {
	return len(self.Added) == 0 && len(self.Removed) == 0 && len(self.Updated) == 0
}

// ComputeRecordPatch computes the field operations that transform
// `before` into `after`. Fields are visited in sorted name order so
// that the generated operation sequence is stable for equal inputs.
func ComputeRecordPatch(before Record, after Record) ([]PatchOperation, error) {
	fieldSet := map[string]bool{}
	for field := range before {
		fieldSet[field] = true
	}
	for field := range after {
		fieldSet[field] = true
	}
	fields := maps.Keys(fieldSet)
	slices.Sort(fields)

	ops := []PatchOperation{}
	for _, field := range fields {
		beforeValue, inBefore := before[field]
		afterValue, inAfter := after[field]
		if inBefore && inAfter && reflect.DeepEqual(beforeValue, afterValue) {
			continue
		}

		// diff one field at a time, wrapped in a single-key object so
		// the generated paths carry the field prefix
		beforeWrapper := map[string]any{}
		if inBefore {
			beforeWrapper[field] = beforeValue
		}
		afterWrapper := map[string]any{}
		if inAfter {
			afterWrapper[field] = afterValue
		}

		patchList, err := jsonpatch.CreateJSONPatch(afterWrapper, beforeWrapper)
		if err != nil {
			return nil, fmt.Errorf("patch for field %q: %w", field, err)
		}
		ops = append(ops, patchList.List()...)
	}
	return ops, nil
}
