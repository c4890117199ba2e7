package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteReport 落盘 reports/reconcile_<account_id>.json，写临时文件后改名
func WriteReport(dataDir string, report *Report) (string, error) {
	dir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("reconcile_%s.json", report.AccountID))

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}
