package history

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/doc-history/internal/domain"
)

func TestDiffIdenticalIsEmpty(t *testing.T) {
	doc := map[string]any{
		"name":  "Banana",
		"color": map[string]any{"primary": "yellow"},
		"tags":  []any{"fruit", map[string]any{"k": 1}},
		"at":    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	diffs, err := Diff(doc, doc)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	copied := map[string]any{
		"name":  "Banana",
		"color": map[string]any{"primary": "yellow"},
		"tags":  []any{"fruit", map[string]any{"k": float64(1)}},
		"at":    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	diffs, err = Diff(doc, copied)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiffNilBeforeReportsEverythingCreated(t *testing.T) {
	diffs, err := Diff(nil, map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)

	assert.Equal(t, []RawDiff{
		{Kind: domain.ChangeCreated, Path: domain.Path{"a"}, RHS: "x"},
		{Kind: domain.ChangeCreated, Path: domain.Path{"b"}, RHS: 2},
	}, diffs)
}

func TestDiffClassifiesChanges(t *testing.T) {
	before := map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x"},
		"d": true,
	}
	after := map[string]any{
		"a": 2,
		"b": map[string]any{"c": "x", "e": "y"},
		"f": nil,
	}

	diffs, err := Diff(before, after)
	require.NoError(t, err)

	assert.Equal(t, []RawDiff{
		{Kind: domain.ChangeEdited, Path: domain.Path{"a"}, LHS: 1, RHS: 2},
		{Kind: domain.ChangeCreated, Path: domain.Path{"b", "e"}, RHS: "y"},
		{Kind: domain.ChangeDeleted, Path: domain.Path{"d"}, LHS: true},
		{Kind: domain.ChangeCreated, Path: domain.Path{"f"}, RHS: nil},
	}, diffs)
}

func TestDiffShapeChangeIsEdit(t *testing.T) {
	before := map[string]any{"color": map[string]any{"primary": "yellow"}}
	after := map[string]any{"color": "yellow"}

	diffs, err := Diff(before, after)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, domain.ChangeEdited, diffs[0].Kind)
	assert.Equal(t, domain.Path{"color"}, diffs[0].Path)
	assert.Equal(t, map[string]any{"primary": "yellow"}, diffs[0].LHS)
	assert.Equal(t, "yellow", diffs[0].RHS)
}

func TestDiffArrays(t *testing.T) {
	tts := []struct {
		name   string
		before []any
		after  []any
		items  []domain.ArrayItem
	}{
		{
			name:   "append",
			before: []any{"a"},
			after:  []any{"a", "b", "c"},
			items: []domain.ArrayItem{
				{Index: 1, Kind: domain.ChangeCreated, After: "b"},
				{Index: 2, Kind: domain.ChangeCreated, After: "c"},
			},
		},
		{
			name:   "truncate",
			before: []any{"a", "b"},
			after:  []any{"a"},
			items: []domain.ArrayItem{
				{Index: 1, Kind: domain.ChangeDeleted, Before: "b"},
			},
		},
		{
			name:   "replace element",
			before: []any{map[string]any{"k": 1}, "z"},
			after:  []any{map[string]any{"k": 2}, "z"},
			items: []domain.ArrayItem{
				{Index: 0, Kind: domain.ChangeEdited, Before: map[string]any{"k": 1}, After: map[string]any{"k": 2}},
			},
		},
	}

	for _, tt := range tts {
		t.Run(tt.name, func(t *testing.T) {
			diffs, err := Diff(map[string]any{"list": tt.before}, map[string]any{"list": tt.after})
			require.NoError(t, err)
			require.Len(t, diffs, len(tt.items))
			for i, diff := range diffs {
				assert.Equal(t, domain.ChangeArrayChanged, diff.Kind)
				assert.Equal(t, domain.Path{"list"}, diff.Path)
				require.NotNil(t, diff.Item)
				assert.Equal(t, tt.items[i], *diff.Item)
			}
		})
	}
}

func TestDiffNumbersCompareByValue(t *testing.T) {
	diffs, err := Diff(
		map[string]any{"n": 1, "u": uint8(3), "f": float32(1.5)},
		map[string]any{"n": float64(1), "u": int64(3), "f": 1.5},
	)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	diffs, err = Diff(map[string]any{"n": -1}, map[string]any{"n": uint(1)})
	require.NoError(t, err)
	assert.Len(t, diffs, 1)
}

func TestDiffNumberVersusString(t *testing.T) {
	diffs, err := Diff(map[string]any{"v": 1}, map[string]any{"v": "1"})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, domain.ChangeEdited, diffs[0].Kind)
}

func TestDiffCyclicStructure(t *testing.T) {
	after := map[string]any{"name": "loop"}
	after["self"] = after

	_, err := Diff(map[string]any{}, after)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicStructure))

	list := []any{"a", nil}
	list[1] = list
	_, err = Diff(map[string]any{"list": []any{"a"}}, map[string]any{"list": list})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicStructure))
}

func TestDiffSharedValuesAreNotCycles(t *testing.T) {
	shared := map[string]any{"k": "v"}
	diffs, err := Diff(
		map[string]any{"a": shared, "b": shared},
		map[string]any{"a": shared, "b": shared, "c": shared},
	)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, domain.Path{"c"}, diffs[0].Path)
}

func TestDiffIncomparable(t *testing.T) {
	_, err := Diff(map[string]any{}, map[string]any{"fn": func() {}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomparable))

	_, err = Diff(map[string]any{"ch": 1}, map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomparable))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(map[string]any{"a": []any{1, "x", map[string]any{}}}))

	cyclic := map[string]any{}
	cyclic["me"] = []any{cyclic}
	assert.True(t, errors.Is(Validate(cyclic), ErrCyclicStructure))
}
