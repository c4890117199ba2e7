package tradeplan

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// lockTimeout 文件锁等待上限
const lockTimeout = 10 * time.Second

// writeAtomic 写临时文件、fsync、改名，避免读到半写文件
func writeAtomic(path string, v any) error {
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

// readDraftLocked 持文件锁读取草稿，防止与并发写者撕裂
func readDraftLocked(ctx context.Context, path string) (Draft, error) {
	var draft Draft

	lock := flock.New(path + ".lock")
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return draft, err
	}
	if locked {
		defer lock.Unlock()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return draft, err
	}
	err = json.Unmarshal(b, &draft)
	return draft, err
}

// ReadDraft 无锁读取（最终计划文件等单写者场景）
func ReadDraft(path string) (Draft, error) {
	var draft Draft
	b, err := os.ReadFile(path)
	if err != nil {
		return draft, err
	}
	err = json.Unmarshal(b, &draft)
	return draft, err
}
