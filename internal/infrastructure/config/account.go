package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AccountConfig core_parameters/account/<id>.json 的账户档案
type AccountConfig struct {
	AccountID   string `json:"account_id"`
	ProgramName string `json:"program_name"`
	ProgramPath string `json:"program_path"`
	Password    string `json:"password,omitempty"`
	LastRunDate string `json:"last_run_date,omitempty"`
}

// AllocationEntry 本账户对某个外部策略的跟投配置
type AllocationEntry struct {
	StrategyID   string  `json:"策略ID"`
	StrategyName string  `json:"策略名称"`
	ConfigPct    float64 `json:"配置比例"`
	BatchNo      int     `json:"批次"`
}

// LoadAccount 按别名或 ID 读取账户档案
func LoadAccount(dataDir, alias string) (*AccountConfig, error) {
	path := filepath.Join(dataDir, "core_parameters", "account", alias+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("account config %s: %w", alias, err)
	}
	var ac AccountConfig
	if err := json.Unmarshal(b, &ac); err != nil {
		return nil, fmt.Errorf("account config %s: %w", alias, err)
	}
	if ac.AccountID == "" {
		ac.AccountID = alias
	}
	return &ac, nil
}

// LoadAllocations 读取 yunfei_ball/allocation.json
func LoadAllocations(dataDir string) ([]AllocationEntry, error) {
	path := filepath.Join(dataDir, "yunfei_ball", "allocation.json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []AllocationEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadProportion 读取 mama.json 的操作比例。
// 历史文件里出现过数字、数字字符串和 "50%" 三种写法，都接受。
// 文件缺失按 1.0 处理。
func LoadProportion(dataDir string) (float64, error) {
	path := filepath.Join(dataDir, "core_parameters", "account", "mama.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1.0, nil
		}
		return 0, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return 0, err
	}
	raw, ok := m["proportion"]
	if !ok {
		return 1.0, nil
	}
	p, err := parseProportion(raw)
	if err != nil {
		return 0, err
	}
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("proportion %v out of (0,1]", p)
	}
	return p, nil
}

func parseProportion(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if strings.HasSuffix(s, "%") {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
			if err != nil {
				return 0, err
			}
			return n / 100, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("proportion has unsupported type %T", raw)
	}
}
