package systems

import (
	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// Дистанционные предикаты. Чистая арифметика, поиск путей не трогают.
// Боевые правила считают диагональ за 1 клетку, поэтому везде Чебышев.

// InMeleeRange возвращает true, если цель в соседней клетке (включая диагональ)
func InMeleeRange(attacker, target domain.Position) bool {
	return attacker.IsAdjacent(target)
}

// InRangedRange возвращает true, если цель в радиусе radius клеток
func InRangedRange(attacker, target domain.Position, radius int) bool {
	if radius < 0 {
		return false
	}
	return attacker.ChebyshevTo(target) <= radius
}

// HasLineOfSight проверяет прямую видимость между двумя клетками.
// Использует оптимизированный алгоритм Брезенхэма (только целочисленная
// арифметика). Блокируют только клетки Blocked; стартовая и конечная
// клетки препятствием не считаются.
func HasLineOfSight(g *domain.GridModel, p1, p2 domain.Position) bool {
	if p1 == p2 {
		return true
	}

	x0, y0 := p1.X, p1.Y
	x1, y1 := p2.X, p2.Y

	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy < 0 {
		dy = -dy
	}

	sx, sy := sign(x1-x0), sign(y1-y0)

	err := dx - dy

	for {
		isStart := x0 == p1.X && y0 == p1.Y
		isEnd := x0 == p2.X && y0 == p2.Y

		if !isStart && !isEnd {
			p := domain.Position{X: x0, Y: y0}
			// 1. Границы карты
			if !g.InBounds(p) {
				return false
			}
			// 2. Непроходимая клетка закрывает обзор
			if g.CellAt(p).Blocked {
				return false
			}
		}

		if x0 == x1 && y0 == y1 {
			break
		}

		e2 := err * 2
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}

	return true
}

func sign(x int) int {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}
