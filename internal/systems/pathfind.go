package systems

import (
	"container/heap"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// Порядок обхода соседей фиксирован: вверх, вниз, влево, вправо.
// От него зависит детерминизм тай-брейка, менять нельзя.
var neighborSteps = [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}

// ReachResult - результат вычисления зоны досягаемости.
// Не меняет состояние карты!
type ReachResult struct {
	// Costs: клетка -> минимальная накопленная стоимость (<= бюджета)
	Costs map[domain.Position]int
	// prev хранит обратные ссылки для восстановления пути
	prev map[domain.Position]domain.Position
	from domain.Position
}

// PathTo восстанавливает путь от старта до клетки из зоны досягаемости.
// Возвращает nil, если клетка недостижима. Путь включает старт и цель.
func (r *ReachResult) PathTo(goal domain.Position) []domain.Position {
	if _, ok := r.Costs[goal]; !ok {
		return nil
	}

	// Раскручиваем цепочку prev от цели к старту
	path := []domain.Position{goal}
	cur := goal
	for cur != r.from {
		cur = r.prev[cur]
		path = append(path, cur)
	}

	// Разворачиваем
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ReachableTiles вычисляет полную зону досягаемости из start при данном
// бюджете движения (равномерный поиск по стоимости, 4 направления).
//
// Правила:
//   - стоимость ребра = стоимость КЛЕТКИ НАЗНАЧЕНИЯ, не исходной;
//   - клетки Blocked и клетки, занятые чужим подвижным токеном, не
//     раскрываются вовсе (объектные токены не мешают);
//   - узел с накопленной стоимостью выше бюджета не попадает во фронтир
//     (отсечение на раскрытии, а не пост-фильтр - важно на больших картах).
//
// ignoreTokenID - ключ токена самого ходящего (его собственная клетка не
// считается занятой). Старт вне карты дает пустую зону.
func ReachableTiles(g *domain.GridModel, start domain.Position, budget int, ignoreTokenID string) *ReachResult {
	res := &ReachResult{
		Costs: make(map[domain.Position]int),
		prev:  make(map[domain.Position]domain.Position),
		from:  start,
	}

	if !g.InBounds(start) || budget < 0 {
		return res
	}

	res.Costs[start] = 0

	open := make(frontier, 0)
	heap.Init(&open)

	seq := 0
	startNode := &pathNode{Pos: start, Cost: 0, Seq: seq}
	heap.Push(&open, startNode)

	// Лучшая известная стоимость и ссылка на узел во фронтире
	best := map[domain.Position]*pathNode{start: startNode}
	closed := make(map[domain.Position]bool)

	for open.Len() > 0 {
		node := heap.Pop(&open).(*pathNode)
		if closed[node.Pos] {
			continue
		}
		closed[node.Pos] = true
		res.Costs[node.Pos] = node.Cost

		for _, step := range neighborSteps {
			next := node.Pos.Shift(step[0], step[1])

			if !g.InBounds(next) || closed[next] {
				continue
			}
			cell := g.CellAt(next)
			if cell.Blocked || cell.Cost >= domain.ImpassableCost {
				continue
			}
			// Чужой подвижный токен исключает клетку целиком
			if occ := g.MovableTokenAt(next); occ != nil && occ.ID != ignoreTokenID {
				continue
			}

			nextCost := node.Cost + cell.Cost
			if nextCost > budget {
				continue
			}

			if existing, ok := best[next]; ok {
				if nextCost < existing.Cost {
					open.Update(existing, nextCost)
					res.prev[next] = node.Pos
				}
				continue
			}

			seq++
			child := &pathNode{Pos: next, Cost: nextCost, Seq: seq}
			best[next] = child
			res.prev[next] = node.Pos
			heap.Push(&open, child)
		}
	}

	return res
}

// FindPath ищет путь минимальной стоимости от start к goal в пределах
// бюджета. Возвращает путь (включая обе конечные клетки), его полную
// стоимость и ok=false, если пути нет (вне карты, занято, не хватает бюджета).
func FindPath(g *domain.GridModel, start, goal domain.Position, budget int, ignoreTokenID string) ([]domain.Position, int, bool) {
	if !g.InBounds(start) || !g.InBounds(goal) {
		return nil, 0, false
	}

	reach := ReachableTiles(g, start, budget, ignoreTokenID)
	cost, ok := reach.Costs[goal]
	if !ok {
		return nil, 0, false
	}
	return reach.PathTo(goal), cost, true
}
