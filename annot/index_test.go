package annot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_SetGet(t *testing.T) {
	ix := NewIndex()

	anns := Annotations{
		"tissue": String("cortex"),
		"age":    Int(64),
		"treated": Bool(true),
	}
	ix.Set(0, anns)

	got, ok := ix.Get(0)
	require.True(t, ok)
	assert.Equal(t, anns, got)

	_, ok = ix.Get(99)
	assert.False(t, ok)

	// Mutating the returned copy must not affect the index.
	got["tissue"] = String("liver")
	again, _ := ix.Get(0)
	assert.True(t, again["tissue"].Equal(String("cortex")))
}

func TestIndex_Filter(t *testing.T) {
	ix := NewIndex()
	ix.Set(0, Annotations{"tissue": String("cortex"), "batch": Int(1)})
	ix.Set(1, Annotations{"tissue": String("cortex"), "batch": Int(2)})
	ix.Set(2, Annotations{"tissue": String("liver"), "batch": Int(1)})

	cortex := ix.Filter("tissue", String("cortex"))
	assert.Equal(t, []uint32{0, 1}, cortex.ToArray())

	liver := ix.Filter("tissue", String("liver"))
	assert.Equal(t, []uint32{2}, liver.ToArray())

	none := ix.Filter("tissue", String("kidney"))
	assert.True(t, none.IsEmpty())

	unknownKey := ix.Filter("donor", String("d1"))
	assert.True(t, unknownKey.IsEmpty())
}

func TestIndex_FilterAll(t *testing.T) {
	ix := NewIndex()
	ix.Set(0, Annotations{"tissue": String("cortex"), "batch": Int(1)})
	ix.Set(1, Annotations{"tissue": String("cortex"), "batch": Int(2)})
	ix.Set(2, Annotations{"tissue": String("liver"), "batch": Int(1)})

	got := ix.FilterAll(Annotations{
		"tissue": String("cortex"),
		"batch":  Int(1),
	})
	assert.Equal(t, []uint32{0}, got.ToArray())

	empty := ix.FilterAll(Annotations{
		"tissue": String("liver"),
		"batch":  Int(2),
	})
	assert.True(t, empty.IsEmpty())

	assert.True(t, ix.FilterAll(nil).IsEmpty())
}

func TestIndex_Update(t *testing.T) {
	ix := NewIndex()
	ix.Set(0, Annotations{"tissue": String("cortex")})
	ix.Set(0, Annotations{"tissue": String("liver")})

	assert.True(t, ix.Filter("tissue", String("cortex")).IsEmpty())
	assert.Equal(t, []uint32{0}, ix.Filter("tissue", String("liver")).ToArray())
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_NullNotIndexed(t *testing.T) {
	ix := NewIndex()
	ix.Set(0, Annotations{"age": Null(), "tissue": String("cortex")})

	assert.True(t, ix.Filter("age", Null()).IsEmpty())
	assert.Equal(t, []string{"tissue"}, ix.Keys())

	// The null value is still stored on the document itself.
	anns, ok := ix.Get(0)
	require.True(t, ok)
	assert.True(t, anns["age"].IsNull())
}
