package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup - 표준 log 출력을 콘솔 + LOG_DIR/server.log 로 보낸다
// 파일은 자정마다 회전하고 7개까지 보관
func Setup(logDir string) (io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "server.log"),
		MaxSize:    100, // MB
		MaxBackups: 7,
		MaxAge:     7, // days
		LocalTime:  true,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags)

	go rotateAtMidnight(file)

	log.Printf("📝 Logging to stdout and %s", file.Filename)
	return file, nil
}

func rotateAtMidnight(file *lumberjack.Logger) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		time.Sleep(time.Until(next))
		if err := file.Rotate(); err != nil {
			log.Printf("⚠️  Log rotation failed: %v", err)
		}
	}
}
