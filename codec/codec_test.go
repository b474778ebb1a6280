package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestUnmarshalStrict(t *testing.T) {
	type cfg struct {
		InputDim  int `json:"input_dim"`
		LatentDim int `json:"latent_dim"`
	}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			var v cfg
			err := c.UnmarshalStrict([]byte(`{"input_dim":100,"latent_dim":128}`), &v)
			require.NoError(t, err)
			assert.Equal(t, 100, v.InputDim)
			assert.Equal(t, 128, v.LatentDim)

			err = c.UnmarshalStrict([]byte(`{"input_dim":100,"bogus":1}`), &v)
			assert.Error(t, err)
		})
	}
}
