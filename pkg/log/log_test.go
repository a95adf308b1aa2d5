// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestDefaultConf(t *testing.T) {
	conf := SetDefaults()

	if conf.Output != "stdout" {
		t.Errorf("expected output to be stdout, got %s", conf.Output)
	}

	if conf.Level != "INFO" {
		t.Errorf("expected level to be INFO, got %s", conf.Level)
	}

	if conf.KeepDays != 7 {
		t.Errorf("expected KeepDays to be 7, got %d", conf.KeepDays)
	}
}

func TestConf_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Conf
		wantErr bool
	}{
		{
			name: "valid stdout config",
			conf: &Conf{
				Output: "stdout",
				Level:  "INFO",
			},
			wantErr: false,
		},
		{
			name: "valid file config",
			conf: &Conf{
				Output:     "file",
				Path:       "/tmp/logs",
				Level:      "DEBUG",
				KeepDays:   7,
				RotateSize: 100,
				RotateNum:  10,
			},
			wantErr: false,
		},
		{
			name: "invalid file config - missing path",
			conf: &Conf{
				Output: "file",
				Level:  "INFO",
			},
			wantErr: true,
		},
		{
			name: "file config with auto-correction",
			conf: &Conf{
				Output: "file",
				Path:   "/tmp/logs",
				Level:  "INFO",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && tt.conf.Output == "file" {
				if tt.conf.RotateSize <= 0 {
					t.Error("RotateSize should be auto-corrected to positive value")
				}
				if tt.conf.RotateNum <= 0 {
					t.Error("RotateNum should be auto-corrected to positive value")
				}
				if tt.conf.KeepDays <= 0 {
					t.Error("KeepDays should be auto-corrected to positive value")
				}
			}
		})
	}
}

func TestNewLog_Stdout(t *testing.T) {
	conf := &Conf{
		Output: "stdout",
		Level:  "DEBUG",
	}

	logger, err := NewLog(conf)
	if err != nil {
		t.Fatalf("NewLog() error = %v", err)
	}

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	logger.Info("test message")
}

func TestNewLog_File(t *testing.T) {
	tmpDir := t.TempDir()

	conf := &Conf{
		Output:     "file",
		Path:       tmpDir,
		Filename:   "test.log",
		Level:      "INFO",
		KeepDays:   1,
		RotateSize: 1,
		RotateNum:  3,
	}

	logger, err := NewLog(conf)
	if err != nil {
		t.Fatalf("NewLog() error = %v", err)
	}

	logger.Sugar().Info("test message 1")
	logger.Sync()

	logFile := filepath.Join(tmpDir, "test.log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("log file should exist at %s", logFile)
	}
}

func TestInit(t *testing.T) {
	conf := SetDefaults()
	err := Init(conf)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	mu.RLock()
	initialized := sugar != nil
	mu.RUnlock()
	if !initialized {
		t.Error("global sugar logger should be initialized")
	}
}

func TestGlobalLogFunctions(t *testing.T) {
	conf := SetDefaults()
	if err := Init(conf); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Info("test info message")
	Infow("formatted info", "value", "test")
	Debugw("formatted debug", "value", 123)
	Warnw("formatted warn", "count", 5)
	Errorw("formatted error", "error", "something went wrong")
}

func TestConcurrentLogging(t *testing.T) {
	conf := SetDefaults()
	if err := Init(conf); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := make(chan bool, 100)

	for i := 0; i < 100; i++ {
		n := i
		go func() {
			Infow("concurrent message", "number", n)
			Debugw("debug message", "number", n)
			Warnw("warn message", "number", n)
			done <- true
		}()
	}

	for range 100 {
		<-done
	}
}

func TestMultipleInit(t *testing.T) {
	for i := 0; i < 3; i++ {
		conf := SetDefaults()
		err := Init(conf)
		if err != nil {
			t.Fatalf("Init() iteration %d error = %v", i, err)
		}
	}

	Info("test after multiple init")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"DEBUG", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"WARNING", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"FATAL", zapcore.FatalLevel},
		{"INVALID", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLogLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLogLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
