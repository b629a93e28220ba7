package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediadash/agent/config"
	"github.com/mediadash/agent/internal/communicator"
	"github.com/mediadash/agent/internal/executor"
	"github.com/mediadash/agent/internal/stats"
	"github.com/mediadash/agent/internal/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Version = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := initLogger(cfg.LogPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name := cfg.WorkerName
	if name == "" {
		name = stats.Hostname(ctx)
	}

	logger.Info("starting mediadash agent",
		zap.String("version", Version),
		zap.String("backend", cfg.BackendURL),
		zap.String("worker_id", cfg.WorkerID),
		zap.String("inbox", cfg.InboxDir),
	)

	client := communicator.NewClient(communicator.ClientConfig{
		BackendURL:  cfg.BackendURL,
		WorkerToken: cfg.WorkerToken,
		Version:     Version,
		Logger:      logger,
	})

	w := worker.New(worker.Config{
		ID:             cfg.WorkerID,
		Name:           name,
		InboxDir:       cfg.InboxDir,
		OutputDir:      cfg.OutputDir,
		Extensions:     cfg.Extensions,
		ReportInterval: cfg.ReportInterval,
		ScanInterval:   cfg.ScanInterval,
		MaxCPUPercent:  cfg.MaxCPUPercent,
		Reporter:       client,
		Runner:         executor.NewExecutor(cfg.Command, 0, logger.Named("executor")),
		Load:           stats.NewCollector(),
		Logger:         logger,
	})

	w.Run(ctx)
	logger.Info("agent stopped gracefully")
}

func initLogger(logPath string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapcore.InfoLevel,
	)

	cores := []zapcore.Core{consoleCore}

	if logPath != "" {
		if file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				zapcore.InfoLevel,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
