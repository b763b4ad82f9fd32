package systems

import (
	"container/heap"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
)

// pathNode - обертка для элемента очереди приоритетов поиска
type pathNode struct {
	Pos   domain.Position
	Cost  int // Накопленная стоимость. Чем меньше, тем раньше раскрытие.
	Seq   int // Порядок обнаружения (детерминированный тай-брейк)
	Index int // Индекс в куче (нужен для update)
}

// frontier реализует heap.Interface и хранит pathNodes
type frontier []*pathNode

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	// MinHeap по стоимости. При равной стоимости побеждает
	// раньше обнаруженный узел - иначе путь недетерминирован.
	if f[i].Cost != f[j].Cost {
		return f[i].Cost < f[j].Cost
	}
	return f[i].Seq < f[j].Seq
}

func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].Index = i
	f[j].Index = j
}

func (f *frontier) Push(x interface{}) {
	n := len(*f)
	node := x.(*pathNode)
	node.Index = n
	*f = append(*f, node)
}

func (f *frontier) Pop() interface{} {
	old := *f
	n := len(old)
	node := old[n-1]
	old[n-1] = nil  // избегаем утечки памяти
	node.Index = -1 // для безопасности
	*f = old[0 : n-1]
	return node
}

// Update изменяет стоимость узла в очереди
func (f *frontier) Update(node *pathNode, cost int) {
	node.Cost = cost
	heap.Fix(f, node.Index)
}
