package fsmstate

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"telegram-planner/internal/infra/storage"
)

// boltFilePerm — права на файл базы: доступ только владельцу процесса.
const boltFilePerm = 0o600

// bucketStates — единственный бакет с состояниями диалогов.
var bucketStates = []byte("fsm_states")

// BoltStore — встраиваемое хранилище состояний на bbolt. Подходит для запуска
// в один воркер и для тестов: не требует внешних сервисов, состояние переживает
// рестарт процесса. Для нескольких воркеров используйте RedisStore.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore открывает (или создаёт) файл базы по указанному пути.
// Таймаут открытия защищает от вечного ожидания на файле, захваченном
// другим процессом.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("fsmstate: ensure bolt dir: %w", err)
	}
	db, err := bbolt.Open(path, boltFilePerm, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("fsmstate: open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, errBucket := tx.CreateBucketIfNotExists(bucketStates)
		return errBucket
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fsmstate: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// boltKey кодирует chat_id в 8 байт big-endian; отрицательные id групп
// кодируются дополнением до двух без потерь.
func boltKey(chatID int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(chatID))
	return buf[:]
}

// Get возвращает сериализованное состояние чата либо (nil, nil), если записи нет.
func (s *BoltStore) Get(_ context.Context, chatID int64) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketStates).Get(boltKey(chatID))
		if v != nil {
			// Копируем: срез валиден только внутри транзакции.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsmstate: get chat %d: %w", chatID, err)
	}
	return data, nil
}

// Set записывает состояние чата.
func (s *BoltStore) Set(_ context.Context, chatID int64, data []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStates).Put(boltKey(chatID), data)
	})
	if err != nil {
		return fmt.Errorf("fsmstate: set chat %d: %w", chatID, err)
	}
	return nil
}

// Clear удаляет состояние чата. Отсутствие записи не считается ошибкой.
func (s *BoltStore) Clear(_ context.Context, chatID int64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStates).Delete(boltKey(chatID))
	})
	if err != nil {
		return fmt.Errorf("fsmstate: clear chat %d: %w", chatID, err)
	}
	return nil
}

// Close закрывает файл базы.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
