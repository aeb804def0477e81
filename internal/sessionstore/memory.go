package sessionstore

import (
	"context"
	"sync"
	"time"
)

// janitorInterval は期限切れエントリのクリーンアップ間隔。
const janitorInterval = 5 * time.Minute

// memoryEntry は値と失効時刻を保持する。
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore はインプロセスのセッションストア。
// プロセス再起動でセッションが失われるため、非永続デプロイでのみ使用する。
// 期限切れエントリはバックグラウンドのジャニターが定期的に回収する。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// テストから差し替え可能な現在時刻取得関数
	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore はMemoryStoreを生成し、ジャニターを起動する。
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go s.janitorLoop()

	return s
}

// Get はキーに対応する値を返す。期限切れのエントリはこの時点で削除する。
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return "", false, nil
	}

	if !entry.expiresAt.After(s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false, nil
	}

	return entry.value, true, nil
}

// Set は値をTTL付きで保存する。
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Delete はキーを削除する。存在しないキーの削除もエラーにしない。
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close はジャニターを停止する。
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Len は現在のエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// janitorLoop は期限切れエントリを定期的に回収する。
func (s *MemoryStore) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// removeExpired は失効済みの全エントリを削除する。
func (s *MemoryStore) removeExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
