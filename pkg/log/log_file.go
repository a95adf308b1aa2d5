package log

import (
	"fmt"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultFilename = "gatehouse.log"

// getFileLogWriter returns the WriteSyncer for logging to a file.
func getFileLogWriter(conf *Conf) zapcore.WriteSyncer {
	name := conf.Filename
	if name == "" {
		name = defaultFilename
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   fmt.Sprintf("%s/%s", conf.Path, name),
		MaxSize:    conf.RotateSize,
		MaxBackups: conf.RotateNum,
		MaxAge:     conf.KeepDays,
		Compress:   true,
	}
	return zapcore.AddSync(lumberJackLogger)
}
