package domain

// ImpassableCost - сентинел стоимости для непроходимых клеток (болото лавы, пропасть).
// Значение согласовано с бэкендом: terrain[][] присылает 999 для таких клеток.
const ImpassableCost = 999

// Cell - одна клетка террейна
type Cell struct {
	Terrain   string `json:"terrain"`
	Cost      int    `json:"cost"`
	Blocked   bool   `json:"blocked"`
	Difficult bool   `json:"difficult,omitempty"`
	Cover     int    `json:"cover,omitempty"`
	Elevation int    `json:"elevation,omitempty"`
}

// GridModel - карта боя: размеры, террейн и токены.
//
// Модель неизменяема между синхронизациями: каждый авторитетный снапшот
// заменяет её целиком. Локальные изменения делаются только на теневой
// копии (Clone) внутри координатора.
type GridModel struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Cells индексируется как Cells[x][y]
	Cells [][]Cell `json:"cells"`

	Tokens []*Token `json:"tokens"`
}

// NewGridModel создает пустую карту с проходимым террейном стоимостью 1
func NewGridModel(width, height int) *GridModel {
	cells := make([][]Cell, width)
	for x := 0; x < width; x++ {
		cells[x] = make([]Cell, height)
		for y := 0; y < height; y++ {
			cells[x][y] = Cell{Terrain: "floor", Cost: 1}
		}
	}
	return &GridModel{Width: width, Height: height, Cells: cells}
}

// InBounds проверяет границы карты
func (g *GridModel) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// CellAt возвращает клетку (вызывающий обязан проверить границы)
func (g *GridModel) CellAt(p Position) Cell {
	return g.Cells[p.X][p.Y]
}

// IsPassable возвращает true, если на клетку в принципе можно встать
// (в границах, не стена, не сентинел-стоимость)
func (g *GridModel) IsPassable(p Position) bool {
	if !g.InBounds(p) {
		return false
	}
	c := g.CellAt(p)
	return !c.Blocked && c.Cost < ImpassableCost
}

// TokenByID ищет токен по ключу строки
func (g *GridModel) TokenByID(id string) *Token {
	for _, t := range g.Tokens {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TokenByEntity ищет токен по каноническому entityId
func (g *GridModel) TokenByEntity(entityID string) *Token {
	for _, t := range g.Tokens {
		if t.EntityID != "" && t.EntityID == entityID {
			return t
		}
	}
	return nil
}

// MovableTokenAt возвращает токен игрока/NPC, занимающий клетку, либо nil.
// Объектные токены клетку не занимают.
func (g *GridModel) MovableTokenAt(p Position) *Token {
	for _, t := range g.Tokens {
		if t.IsMovable() && t.X == p.X && t.Y == p.Y {
			return t
		}
	}
	return nil
}

// Clone возвращает глубокую копию карты (теневая копия для оптимистичных мутаций)
func (g *GridModel) Clone() *GridModel {
	c := &GridModel{Width: g.Width, Height: g.Height}

	c.Cells = make([][]Cell, len(g.Cells))
	for x := range g.Cells {
		c.Cells[x] = make([]Cell, len(g.Cells[x]))
		copy(c.Cells[x], g.Cells[x])
	}

	c.Tokens = make([]*Token, len(g.Tokens))
	for i, t := range g.Tokens {
		c.Tokens[i] = t.Clone()
	}
	return c
}
