package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// 交易客户端底层库周期性打印的无效告警，
// SUPPRESS_BSON_ERRORS 打开时从控制台过滤掉（文件日志保留全量）。
var noisyFragments = [][]byte{
	[]byte("get bson value error"),
	[]byte("bad lexical cast"),
}

// Setup 初始化全局日志：控制台 + logDir 下按日期命名的文件
func Setup(logDir string) error {
	var sinks []io.Writer

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if suppressNoise() {
		sinks = append(sinks, &filteredWriter{next: console})
	} else {
		sinks = append(sinks, console)
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
		name := filepath.Join(logDir, time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(sinks...)).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}

func suppressNoise() bool {
	v := os.Getenv("SUPPRESS_BSON_ERRORS")
	if v == "" {
		return true // 默认打开
	}
	switch v {
	case "0", "false", "False", "no":
		return false
	}
	return true
}

type filteredWriter struct {
	next io.Writer
}

func (w *filteredWriter) Write(p []byte) (int, error) {
	for _, frag := range noisyFragments {
		if bytes.Contains(p, frag) {
			return len(p), nil
		}
	}
	return w.next.Write(p)
}
