package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event представляет собой любое событие в системе.
type Event interface {
	Name() string
}

// Listener - это обработчик (слушатель) событий.
type Listener func(ctx context.Context, event Event) error

// Bus - шина событий. Публикация не блокирует вызывающего и не возвращает ошибок:
// сбой обработчика только логируется.
type Bus struct {
	listeners map[string][]Listener
	mu        sync.RWMutex
	wg        sync.WaitGroup
	timeout   time.Duration
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[string][]Listener),
		timeout:   time.Minute,
		logger:    logger,
	}
}

// Subscribe подписывает слушателя на определенное событие.
func (b *Bus) Subscribe(eventName string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventName] = append(b.listeners[eventName], listener)
}

// Publish вызывает всех подписчиков в отдельных горутинах.
// Контекст запроса не передаётся: событие должно пережить ответ клиенту.
func (b *Bus) Publish(_ context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	eventName := event.Name()
	for _, listener := range b.listeners[eventName] {
		b.wg.Add(1)
		go func(l Listener) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Паника в обработчике события", zap.String("event", eventName), zap.Any("panic", r))
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()

			if err := l(ctx, event); err != nil {
				b.logger.Error("Ошибка в обработчике события",
					zap.String("event", eventName),
					zap.Error(err),
				)
			}
		}(listener)
	}
}

// Wait дожидается завершения уже запущенных обработчиков. Нужен при остановке сервера и в тестах.
func (b *Bus) Wait() {
	b.wg.Wait()
}
