package sessionstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "token-1", `{"user_id":"u1"}`, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, ok, err := s.Get(ctx, "token-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != `{"user_id":"u1"}` {
		t.Errorf("value = %q", val)
	}
}

func TestMemoryStore_Get_MissingKey(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, ok, err := s.Get(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing key")
	}
}

// TTL経過後はok=falseになり、エントリが回収されること
func TestMemoryStore_Get_ExpiredKey(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	if err := s.Set(ctx, "token-exp", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// 時計を進める
	current = current.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "token-exp")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected ok=false for expired key")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry should be removed, len = %d", s.Len())
	}
}

// 削除は冪等であること
func TestMemoryStore_Delete_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "token-del", "v", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := s.Delete(ctx, "token-del"); err != nil {
		t.Fatalf("1st Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "token-del"); err != nil {
		t.Fatalf("2nd Delete() error = %v", err)
	}

	_, ok, err := s.Get(ctx, "token-del")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("expected key to be deleted")
	}
}

func TestMemoryStore_Set_OverwritesAndResetsTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	if err := s.Set(ctx, "token-ow", "v1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	current = current.Add(30 * time.Second)
	if err := s.Set(ctx, "token-ow", "v2", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// 最初のTTLなら期限切れの時刻でも、上書きでリセットされているため有効
	current = current.Add(45 * time.Second)

	val, ok, err := s.Get(ctx, "token-ow")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist after TTL reset")
	}
	if val != "v2" {
		t.Errorf("value = %q, want v2", val)
	}
}

func TestMemoryStore_RemoveExpired(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	s.Set(ctx, "a", "1", time.Minute)
	s.Set(ctx, "b", "2", time.Hour)

	current = current.Add(10 * time.Minute)
	s.removeExpired()

	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}

	_, ok, _ := s.Get(ctx, "b")
	if !ok {
		t.Error("unexpired key should survive cleanup")
	}
}

// 並行アクセスでデータ競合がないこと（-raceで検証）
func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "token-concurrent"
			s.Set(ctx, key, "v", time.Hour)
			s.Get(ctx, key)
			s.Delete(ctx, key)
		}(i)
	}
	wg.Wait()
}

func TestMemoryStore_ImplementsInterface(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
}
