package views

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// The GPU side structures are std430/std140 compatible little endian rows.

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func putMat4(b []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(b[i*4:], v)
	}
}

func putVec4(b []byte, v mgl32.Vec4) {
	for i, c := range v {
		putF32(b[i*4:], c)
	}
}

func putU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// Vertex is the vertex layout every mesh uses.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

const VertexSize = 32

func encodeVertices(vs []Vertex) []byte {
	out := make([]byte, len(vs)*VertexSize)
	for i, v := range vs {
		b := out[i*VertexSize:]
		for j, c := range v.Position {
			putF32(b[j*4:], c)
		}
		for j, c := range v.Normal {
			putF32(b[12+j*4:], c)
		}
		for j, c := range v.UV {
			putF32(b[24+j*4:], c)
		}
	}
	return out
}

func encodeIndices(is []uint32) []byte {
	out := make([]byte, len(is)*4)
	for i, v := range is {
		putU32(out[i*4:], v)
	}
	return out
}
