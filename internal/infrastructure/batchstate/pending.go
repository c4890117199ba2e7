// Package batchstate 维护按天落盘的执行状态：
// 每账户每批次的完成标记，以及当日已重报的委托集合。
package batchstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// PendingStore 每账户的批次完成标记，{date → {batch → bool}}。
// 标记一旦置 true 当日不再回退。
type PendingStore struct {
	mu   sync.Mutex
	path string
}

func NewPendingStore(dataDir, accountID string) *PendingStore {
	return &PendingStore{
		path: filepath.Join(dataDir, "yunfei_ball", "pending_batches_by_account",
			fmt.Sprintf("pending_batches_%s.json", accountID)),
	}
}

func (s *PendingStore) load() (map[string]map[string]bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]bool{}, nil
		}
		return nil, err
	}
	var m map[string]map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]map[string]bool{}
	}
	return m, nil
}

// Done 查询某天某批次是否已完成
func (s *PendingStore) Done(date string, batchNo int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return false, err
	}
	return m[date][strconv.Itoa(batchNo)], nil
}

// MarkDone 置完成标记并原子落盘。重复调用无害。
func (s *PendingStore) MarkDone(date string, batchNo int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if m[date] == nil {
		m[date] = map[string]bool{}
	}
	m[date][strconv.Itoa(batchNo)] = true
	return writeAtomic(s.path, m)
}

// Today 当前交易日字符串
func Today() string {
	return time.Now().Format("2006-01-02")
}

func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
