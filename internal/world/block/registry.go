package block

import "sync"

// BlockID представляет идентификатор типа блока (порядковый номер в таблице свойств)
type BlockID uint8

// Константы ID блоков
const (
	AirBlockID       BlockID = iota // 0
	StoneBlockID                    // 1
	DirtBlockID                     // 2
	GrassBlockID                    // 3
	SandBlockID                     // 4
	GravelBlockID                   // 5
	WaterBlockID                    // 6
	LogBlockID                      // 7
	LeavesBlockID                   // 8
	GlassBlockID                    // 9
	SnowBlockID                     // 10
	IceBlockID                      // 11
	BedrockBlockID                  // 12
	LavaBlockID                     // 13
	PlanksBlockID                   // 14
	GlowstoneBlockID                // 15

	blockCount
)

// TintKind определяет, какой цвет биома окрашивает грань блока
type TintKind uint8

const (
	TintNone TintKind = iota
	TintGrass
	TintFoliage
	TintWater
)

// Порядок граней в Tiles и TintFaces: +X, -X, +Y, -Y, +Z, -Z
const (
	FacePosX = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// Properties неизменяемые свойства типа блока
type Properties struct {
	ID          BlockID
	Name        string
	Opaque      bool     // полностью закрывает соседние грани
	Fluid       bool     // рисуется в проходе жидкостей
	Transparent bool     // непрозрачен только для блоков того же типа
	Tint        TintKind // окраска по биому
	TintFaces   uint8    // битовая маска граней, к которым применяется Tint
	Tiles       [6]uint16
	Emission    [3]uint8 // собственный свет R, G, B (0-15)
}

// IsAir сообщает, является ли блок пустотой
func (p *Properties) IsAir() bool {
	return p.ID == AirBlockID
}

// TintedFace сообщает, окрашивается ли грань face цветом биома
func (p *Properties) TintedFace(face int) bool {
	return p.Tint != TintNone && p.TintFaces&(1<<uint(face)) != 0
}

// Emits сообщает, излучает ли блок свет
func (p *Properties) Emits() bool {
	return p.Emission[0]|p.Emission[1]|p.Emission[2] != 0
}

const allFaces = 0x3F

// same возвращает одинаковые тайлы для всех граней
func same(tile uint16) [6]uint16 {
	return [6]uint16{tile, tile, tile, tile, tile, tile}
}

// column возвращает тайлы для блока с отдельными верхом/низом
func column(side, top, bottom uint16) [6]uint16 {
	return [6]uint16{side, side, top, bottom, side, side}
}

// definitions декларативное описание всех блоков; индекс таблицы = ID
var definitions = []Properties{
	{ID: AirBlockID, Name: "air"},
	{ID: StoneBlockID, Name: "stone", Opaque: true, Tiles: same(1)},
	{ID: DirtBlockID, Name: "dirt", Opaque: true, Tiles: same(2)},
	{ID: GrassBlockID, Name: "grass", Opaque: true, Tiles: column(3, 4, 2),
		Tint: TintGrass, TintFaces: 1 << FacePosY},
	{ID: SandBlockID, Name: "sand", Opaque: true, Tiles: same(5)},
	{ID: GravelBlockID, Name: "gravel", Opaque: true, Tiles: same(6)},
	{ID: WaterBlockID, Name: "water", Fluid: true, Tiles: same(7),
		Tint: TintWater, TintFaces: allFaces},
	{ID: LogBlockID, Name: "log", Opaque: true, Tiles: column(8, 9, 9)},
	{ID: LeavesBlockID, Name: "leaves", Transparent: true, Tiles: same(10),
		Tint: TintFoliage, TintFaces: allFaces},
	{ID: GlassBlockID, Name: "glass", Transparent: true, Tiles: same(11)},
	{ID: SnowBlockID, Name: "snow", Opaque: true, Tiles: same(12)},
	{ID: IceBlockID, Name: "ice", Transparent: true, Tiles: same(13)},
	{ID: BedrockBlockID, Name: "bedrock", Opaque: true, Tiles: same(14)},
	{ID: LavaBlockID, Name: "lava", Fluid: true, Tiles: same(15), Emission: [3]uint8{15, 6, 0}},
	{ID: PlanksBlockID, Name: "planks", Opaque: true, Tiles: same(16)},
	{ID: GlowstoneBlockID, Name: "glowstone", Opaque: true, Tiles: same(17), Emission: [3]uint8{15, 13, 8}},
}

var (
	table     [256]Properties
	tableOnce sync.Once
)

// initTable строит таблицу свойств один раз при первом обращении
func initTable() {
	for i := range table {
		table[i] = Properties{ID: BlockID(i), Name: "unknown"}
	}
	for _, def := range definitions {
		table[def.ID] = def
	}
	// Неизвестные ID ведут себя как воздух
	for i := int(blockCount); i < len(table); i++ {
		table[i].ID = AirBlockID
	}
}

// Get возвращает свойства блока. Указатель ссылается на неизменяемую таблицу.
func Get(id BlockID) *Properties {
	tableOnce.Do(initTable)
	return &table[id]
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	return id < blockCount
}

// Count возвращает количество известных типов блоков
func Count() int {
	return int(blockCount)
}

// ByName ищет блок по имени
func ByName(name string) (BlockID, bool) {
	for _, def := range definitions {
		if def.Name == name {
			return def.ID, true
		}
	}
	return AirBlockID, false
}

// EmitsFace решает, рисуется ли грань блока self, граничащая с блоком other.
// Непрозрачный блок закрывает всё; жидкость закрывает ту же жидкость;
// прозрачный блок закрывает блок того же типа; воздух граней не имеет.
func EmitsFace(self, other BlockID) bool {
	s := Get(self)
	if s.IsAir() {
		return false
	}
	o := Get(other)
	if o.Opaque {
		return false
	}
	if s.Opaque {
		return true
	}
	// жидкости и прозрачные блоки
	return s.ID != o.ID
}

// Occludes сообщает, скрывает ли other грань блока self
func Occludes(self, other BlockID) bool {
	return !EmitsFace(self, other) && !Get(self).IsAir()
}
