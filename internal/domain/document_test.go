package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSnapshotIsDeepCopy(t *testing.T) {
	doc := NewDocument("fruits", "fruit-1", map[string]any{
		"color": map[string]any{"primary": "yellow"},
	})
	doc.Version = 2
	doc.Author = "user-1"

	snapshot := doc.Snapshot()
	snapshot["color"].(map[string]any)["primary"] = "red"

	assert.Equal(t, "yellow", doc.Fields["color"].(map[string]any)["primary"])
	assert.Equal(t, "fruit-1", snapshot[FieldID])
	assert.Equal(t, 2, snapshot[FieldVersion])
	assert.NotContains(t, snapshot, FieldAuthor)
}

func TestDocumentMarkRecorded(t *testing.T) {
	doc := NewDocument("fruits", "fruit-1", map[string]any{"name": "Banana"})
	assert.Nil(t, doc.Baseline())

	doc.MarkRecorded()
	doc.Fields["name"] = "Apple"

	require.NotNil(t, doc.Baseline())
	assert.Equal(t, "Banana", doc.Baseline()["name"])
}

func TestDocumentFingerprint(t *testing.T) {
	a := NewDocument("fruits", "1", map[string]any{"name": "Banana", "tags": []any{"x"}})
	b := NewDocument("fruits", "2", map[string]any{"tags": []any{"x"}, "name": "Banana"})

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b.Fields["name"] = "Apple"
	fc, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestIsReservedField(t *testing.T) {
	for _, name := range []string{FieldID, FieldVersion, FieldHistory, FieldAuthor} {
		assert.True(t, IsReservedField(name), name)
	}
	assert.False(t, IsReservedField("name"))
}

func TestRoleIncludes(t *testing.T) {
	assert.True(t, RoleAdmin.Includes(RoleEditor))
	assert.True(t, RoleEditor.Includes(RoleEditor))
	assert.False(t, RoleViewer.Includes(RoleEditor))
	assert.False(t, Role("ghost").Includes(RoleViewer))
	assert.False(t, RoleAdmin.Includes(Role("ghost")))
	assert.True(t, RoleViewer.Valid())
	assert.False(t, Role("").Valid())
}

func TestPath(t *testing.T) {
	p := Path{"color", "primary"}
	assert.Equal(t, "color.primary", p.String())
	assert.Equal(t, "color", p.Root())
	assert.Equal(t, "", Path{}.Root())

	clone := p.Clone()
	clone[0] = "other"
	assert.Equal(t, "color", p[0])
}
