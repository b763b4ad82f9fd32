package domain

// Position - координаты клетки на сетке
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Shift возвращает новую позицию со смещением (не меняя текущую, т.к. Go передает структуры по значению, если не указатель)
func (p Position) Shift(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// ManhattanTo возвращает дистанцию "такси" (для 4-направленного движения)
func (p Position) ManhattanTo(other Position) int {
	return abs(p.X-other.X) + abs(p.Y-other.Y)
}

// ChebyshevTo возвращает дистанцию "короля" (диагональ считается за 1)
func (p Position) ChebyshevTo(other Position) int {
	dx := abs(p.X - other.X)
	dy := abs(p.Y - other.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// IsAdjacent возвращает true, если цель в соседней клетке (включая диагональ)
func (p Position) IsAdjacent(other Position) bool {
	dx := abs(p.X - other.X)
	dy := abs(p.Y - other.Y)

	// Если разница по X и Y не больше 1, значит соседи
	return dx <= 1 && dy <= 1 && (dx != 0 || dy != 0)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
