// Package fsmstate — персистентное хранилище состояний диалогового движка.
// Состояние диалога сериализуется доменным слоем в байты (JSON) и хранится
// по ключу chat_id. Пакет намеренно не знает о схеме состояния: инфраструктура
// отвечает только за надёжное чтение/запись, доменный слой — за содержимое.
//
// Реализации:
//   - RedisStore — основное хранилище для продакшена: переживает рестарты и
//     разделяется несколькими воркерами;
//   - BoltStore — встраиваемый файл bbolt для одиночного воркера и тестов,
//     без внешних сервисов.
package fsmstate

import "context"

// Store — контракт хранилища состояний диалогов.
//
// Get возвращает (nil, nil), если состояния для чата нет: отсутствие записи —
// штатная ситуация (диалог в покое), а не ошибка.
type Store interface {
	Get(ctx context.Context, chatID int64) ([]byte, error)
	Set(ctx context.Context, chatID int64, data []byte) error
	Clear(ctx context.Context, chatID int64) error
	Close() error
}
