package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The globals default to a nop logger so packages can log before Init
// runs, library style. Init swaps in the configured logger.
var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	sugar  = zap.NewNop().Sugar()
)

// ProviderSet is the Wire provider set for the log package.
var ProviderSet = wire.NewSet(ProvideLogger)

// ProvideLogger builds the injectable Logger from config.
func ProvideLogger(conf *Conf) (*Logger, error) {
	zapLogger, err := NewLog(conf)
	if err != nil {
		return nil, err
	}
	return &Logger{Log: zapLogger.Sugar()}, nil
}

// Conf holds logger configuration options.
type Conf struct {
	Output     string
	Path       string
	Filename   string // empty means the default file name
	Level      string
	KeepDays   int // days to keep rotated files
	RotateSize int // max size of a single file (MB)
	RotateNum  int // rotated files to keep
}

// SetDefaults returns the default configuration.
func SetDefaults() *Conf {
	return &Conf{
		Output:     "stdout",
		Path:       "./logs",
		Filename:   "app.log",
		Level:      "INFO",
		KeepDays:   7,
		RotateSize: 100,
		RotateNum:  10,
	}
}

// Validate checks the configuration and fills fallbacks.
func (c *Conf) Validate() error {
	if c.Output == "file" {
		if c.Path == "" {
			return fmt.Errorf("log path is required when output is 'file'")
		}
		if c.RotateSize <= 0 {
			c.RotateSize = 100
		}
		if c.RotateNum <= 0 {
			c.RotateNum = 10
		}
		if c.KeepDays <= 0 {
			c.KeepDays = 7
		}
	}
	return nil
}

type Logger struct {
	Log *zap.SugaredLogger
}

type Option func(*Logger)

// NewLog initializes the logger and returns a zap.Logger.
func NewLog(conf *Conf) (*zap.Logger, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}

	var (
		writeSyncer zapcore.WriteSyncer
		encoder     zapcore.Encoder
		core        zapcore.Core
	)

	encoder = getEncoder()

	switch conf.Output {
	case "stdout":
		writeSyncer = zapcore.AddSync(os.Stdout)
	case "file":
		writeSyncer = getFileLogWriter(conf)
	default:
		writeSyncer = zapcore.AddSync(os.Stdout)
	}

	core = zapcore.NewCore(encoder, writeSyncer, parseLogLevel(conf.Level))

	// wrap the core so trace ids ride along automatically
	core = wrapCoreWithTrace(core)

	newLogger := zap.New(core, zap.AddCallerSkip(1), zap.AddCaller())

	mu.Lock()
	logger = newLogger
	sugar = newLogger.Sugar()
	mu.Unlock()

	sugar.Debugw("log initialized",
		"output", conf.Output,
		"level", conf.Level,
	)

	return newLogger, nil
}

// Init initializes the global logger.
func Init(conf *Conf) error {
	_, err := NewLog(conf)
	return err
}

// MustInit initializes the global logger, panicking on failure.
func MustInit(conf *Conf) {
	if err := Init(conf); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

// GetLogger returns the global sugared logger.
func GetLogger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Sugar()
}

// GetLevel reports the currently enabled level.
func GetLevel() zapcore.Level {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return zapcore.InfoLevel
	}
	core := logger.Core()
	if core.Enabled(zapcore.DebugLevel) {
		return zapcore.DebugLevel
	}
	if core.Enabled(zapcore.InfoLevel) {
		return zapcore.InfoLevel
	}
	if core.Enabled(zapcore.WarnLevel) {
		return zapcore.WarnLevel
	}
	if core.Enabled(zapcore.ErrorLevel) {
		return zapcore.ErrorLevel
	}
	return zapcore.FatalLevel
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.LineEnding = zapcore.DefaultLineEnding
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = customTimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeName = zapcore.FullNameEncoder

	return zapcore.NewConsoleEncoder(encoderConfig)
}

// customTimeEncoder formats the time as 2006-01-02 15:04:05.
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

// parseLogLevel converts a string level to a zapcore.Level.
// Supports case-insensitive matching.
func parseLogLevel(level string) zapcore.Level {
	levelUpper := strings.ToUpper(strings.TrimSpace(level))

	switch levelUpper {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
