package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noah-isme/readalong-api/internal/config"
)

func newLogger(cfg config.Config) zerolog.Logger {
	var writer io.Writer = os.Stdout
	if cfg.LogFile != "" {
		writer = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}
