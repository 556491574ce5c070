package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	s, ok := Lookup("write-file")
	require.True(t, ok)
	assert.Equal(t, WriteFile, s.Kind)
	assert.Equal(t, PhaseWrite, s.Phase)
	assert.True(t, s.Body)

	_, ok = Lookup("write-files")
	assert.False(t, ok)
}

func TestEveryKindHasSchema(t *testing.T) {
	for k := WriteFile; k <= Command; k++ {
		s := Of(k)
		assert.Equal(t, k, s.Kind)
		assert.NotEmpty(t, s.Tag)
		assert.Equal(t, s.Tag, k.String())
	}
	assert.Equal(t, "unknown", Unknown.String())
}

func TestTagsLongestFirst(t *testing.T) {
	tags := Tags()
	idx := func(tag string) int {
		for i, v := range tags {
			if v == tag {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("read-files"), idx("read-file"))
	assert.Len(t, tags, len(All()))
}

func TestMissingAttrs(t *testing.T) {
	s := Of(Rename)
	assert.Equal(t, []string{"to"}, s.MissingAttrs(map[string]string{"from": "a"}))
	assert.Empty(t, s.MissingAttrs(map[string]string{"from": "a", "to": "b"}))
	assert.Equal(t, []string{"from", "to"}, s.MissingAttrs(map[string]string{"from": ""}))
}

func TestDestructiveAndPhases(t *testing.T) {
	for _, k := range []Kind{Delete, Rename, Move, ReplaceFile, RunScript} {
		assert.True(t, Of(k).Destructive, k.String())
	}
	assert.False(t, Of(WriteFile).Destructive)

	assert.Equal(t, []Kind{Delete}, ByPhase(PhaseDelete))
	assert.Equal(t, []Kind{Rename, Move}, ByPhase(PhaseRelocate))
	assert.Contains(t, ByPhase(PhaseExternal), ExecuteSQL)
	assert.False(t, Of(ReadFile).Mutating())
	assert.False(t, Of(Output).Mutating())
	assert.True(t, Of(AddDependency).Mutating())
}
