package batchstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ReorderStore 当日已重报委托号集合，保证同一张原始委托
// 一天内至多补单一次。文件为 JSON 数组，按天一个。
type ReorderStore struct {
	mu  sync.Mutex
	dir string
}

func NewReorderStore(dataDir string) *ReorderStore {
	return &ReorderStore{dir: filepath.Join(dataDir, "runtime", "reorder_records")}
}

func (s *ReorderStore) pathFor(day time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("reorder_record_%s.json", day.Format("20060102")))
}

func (s *ReorderStore) load(day time.Time) ([]int64, error) {
	b, err := os.ReadFile(s.pathFor(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Contains 判断委托号当日是否已重报
func (s *ReorderStore) Contains(day time.Time, orderID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.load(day)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == orderID {
			return true, nil
		}
	}
	return false, nil
}

// Add 记录委托号并原子落盘，已存在时不重复写
func (s *ReorderStore) Add(day time.Time, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.load(day)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == orderID {
			return nil
		}
	}
	ids = append(ids, orderID)
	return writeAtomic(s.pathFor(day), ids)
}
