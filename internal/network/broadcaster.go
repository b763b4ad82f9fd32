package network

import "sync"

// Broadcaster занимается только рассылкой сообщений подписчикам.
// Generic-параметр T - тип сообщения (снапшот состояния, событие действия).
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[chan T]bool
	closed      bool
}

// NewBroadcaster создает пустой рассыльщик
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[chan T]bool),
	}
}

// Subscribe создает личный буферизованный канал подписчика.
// После Close возвращает уже закрытый канал.
func (b *Broadcaster[T]) Subscribe() chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 100)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = true
	return ch
}

// Unsubscribe удаляет подписчика и закрывает его канал
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish отправляет сообщение всем подписчикам.
// Медленных подписчиков с полным буфером пропускаем, чтобы не
// блокировать канал доставки (порядок для них важнее потерянного кадра:
// следующий снапшот все равно полный).
func (b *Broadcaster[T]) Publish(msg T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscriberCount возвращает количество активных подписчиков
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close закрывает все каналы подписчиков. Повторный Close безопасен.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
