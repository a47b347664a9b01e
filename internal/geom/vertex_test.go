package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVertices_Layout(t *testing.T) {
	v := Vertex{
		Pos:   [3]float32{1, 2, 3},
		Sky:   0.5,
		Block: [3]float32{0.1, 0.2, 0.3},
		Color: [3]float32{1, 1, 1},
		Tile:  0x0102,
		Face:  FaceNegZ,
	}

	b := EncodeVertices(nil, []Vertex{v, v})
	require.Len(t, b, 2*VertexStride)
	assert.Equal(t, byte(0x02), b[40], "Tile в little endian")
	assert.Equal(t, byte(0x01), b[41])
	assert.Equal(t, byte(FaceNegZ), b[42])
	assert.Equal(t, byte(0), b[43], "Байт выравнивания равен нулю")

	decoded, err := DecodeVertices(b)
	require.NoError(t, err)
	assert.Equal(t, []Vertex{v, v}, decoded)
}

func TestEncodeVertices_Appends(t *testing.T) {
	prefix := []byte{0xAA}
	b := EncodeVertices(prefix, []Vertex{{Tile: 7}})
	assert.Len(t, b, 1+VertexStride)
	assert.Equal(t, byte(0xAA), b[0])
}

func TestDecodeVertices_BadLength(t *testing.T) {
	_, err := DecodeVertices(make([]byte, VertexStride+1))
	assert.Error(t, err)
}

func TestAppendQuad(t *testing.T) {
	var q [4]Vertex
	for i := range q {
		q[i].Tile = uint16(i)
	}
	out := AppendQuad(nil, q)
	require.Len(t, out, 6)
	tiles := make([]uint16, 6)
	for i, v := range out {
		tiles[i] = v.Tile
	}
	assert.Equal(t, []uint16{0, 1, 2, 0, 2, 3}, tiles)
}

func TestFace_Properties(t *testing.T) {
	assert.Equal(t, float32(1.0), FacePosY.Shade())
	assert.Equal(t, float32(0.5), FaceNegY.Shade())
	assert.Equal(t, float32(0.8), FaceNegX.Shade())
	assert.Equal(t, float32(0.6), FacePosZ.Shade())
	assert.Equal(t, [3]float32{0, 0, -1}, FaceNegZ.Normal())
	assert.Equal(t, FaceNegY, FaceFor(1, false))
	assert.Equal(t, 2, FacePosZ.Axis())
	assert.True(t, FacePosX.Positive())
}
