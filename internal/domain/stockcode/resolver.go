package stockcode

import (
	"encoding/json"
	"os"
	"regexp"
	"sync"
)

var codeLikeRe = regexp.MustCompile(`^\d{6}(\.(SH|SZ))?$`)

// Resolver 维护名称与代码的双向索引。
// 索引加载一次后只读，可在多个 goroutine 间共享。
type Resolver struct {
	mu         sync.RWMutex
	nameToCode map[string]string
	codeToName map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{
		nameToCode: map[string]string{},
		codeToName: map[string]string{},
	}
}

// LoadCodeIndex 读取 code → [name, ...] 形式的索引文件。
// 同名多代码时先出现的胜出。
func (r *Resolver) LoadCodeIndex(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var index map[string][]string
	if err := json.Unmarshal(b, &index); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for code, names := range index {
		norm := Normalize(code)
		for _, name := range names {
			if name == "" {
				continue
			}
			if _, ok := r.nameToCode[name]; !ok {
				r.nameToCode[name] = norm
			}
		}
		if len(names) > 0 {
			if _, ok := r.codeToName[Base(code)]; !ok {
				r.codeToName[Base(code)] = names[0]
			}
		}
	}
	return nil
}

// LoadCoreMap 读取核心股票映射文件。
// 文件可能是 name→code 也可能是 code→name，取一个样本键
// 按 6 位代码模式自动判别方向。
func (r *Resolver) LoadCoreMap(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}

	keyIsCode := false
	for k := range m {
		keyIsCode = codeLikeRe.MatchString(k)
		break
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range m {
		name, code := k, v
		if keyIsCode {
			name, code = v, k
		}
		if name == "" || code == "" {
			continue
		}
		if _, ok := r.nameToCode[name]; !ok {
			r.nameToCode[name] = Normalize(code)
		}
		if _, ok := r.codeToName[Base(code)]; !ok {
			r.codeToName[Base(code)] = name
		}
	}
	return nil
}

// ResolveName 按索引优先、核心映射兜底的顺序把名称解析为规范代码。
// 名称本身就是 6 位代码时直接归一化返回。
func (r *Resolver) ResolveName(name string) (string, bool) {
	r.mu.RLock()
	code, ok := r.nameToCode[name]
	r.mu.RUnlock()
	if ok {
		return code, true
	}
	if codeLikeRe.MatchString(name) {
		return Normalize(name), true
	}
	return "", false
}

// ResolveCode 反查代码对应的显示名称
func (r *Resolver) ResolveCode(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.codeToName[Base(code)]
	return name, ok
}
