package geom

// Face направление грани. Порядок совпадает с порядком тайлов блоков.
type Face uint8

const (
	FacePosX Face = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// AllFaces все направления
var AllFaces = [6]Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}

// FaceFor возвращает грань по оси (0=X, 1=Y, 2=Z) и знаку
func FaceFor(axis int, positive bool) Face {
	f := Face(axis * 2)
	if !positive {
		f++
	}
	return f
}

// Axis ось грани: 0=X, 1=Y, 2=Z
func (f Face) Axis() int {
	return int(f) / 2
}

// Positive сообщает, смотрит ли нормаль в положительную сторону оси
func (f Face) Positive() bool {
	return f%2 == 0
}

// Normal единичная нормаль грани
func (f Face) Normal() [3]float32 {
	var n [3]float32
	if f.Positive() {
		n[f.Axis()] = 1
	} else {
		n[f.Axis()] = -1
	}
	return n
}

// Shade плоское затенение грани по направлению
func (f Face) Shade() float32 {
	switch f {
	case FacePosY:
		return 1.0
	case FaceNegY:
		return 0.5
	case FacePosX, FaceNegX:
		return 0.8
	default:
		return 0.6
	}
}

func (f Face) String() string {
	switch f {
	case FacePosX:
		return "+X"
	case FaceNegX:
		return "-X"
	case FacePosY:
		return "+Y"
	case FaceNegY:
		return "-Y"
	case FacePosZ:
		return "+Z"
	case FaceNegZ:
		return "-Z"
	default:
		return "?"
	}
}
