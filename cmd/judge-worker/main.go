// Command judge-worker is the long-running process that claims judging
// jobs off the queue and drives them through the sandbox to a verdict. It
// wires together every component described by the judging pipeline: the
// Repository (MySQL plus a Redis read cache and a datapack hydration
// layer for out-of-line test data), the primary RabbitMQ job queue, a
// best-effort Kafka event bus for status notifications, the Linux sandbox
// engine, and the Coordinator that drives the whole pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"judgecore/internal/coordinator"
	"judgecore/internal/datapack"
	"judgecore/internal/events"
	"judgecore/internal/executor"
	commonmw "judgecore/internal/platform/http/middleware"
	"judgecore/internal/platform/cache"
	"judgecore/internal/platform/db"
	"judgecore/internal/platform/mq"
	"judgecore/internal/platform/storage"
	"judgecore/internal/queue"
	"judgecore/internal/repository"
	"judgecore/internal/sandbox/engine"
	"judgecore/internal/sandbox/profile"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
	"judgecore/pkg/utils/response"
)

const defaultConfigPath = "configs/judge_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	var redisCache cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err = cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			_ = redisCache.Close()
		}()
	}

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err = storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			os.Exit(1)
		}
	}

	baseRepo := repository.NewMySQLRepository(mysqlDB, redisCache)
	dataCache := datapack.New(datapack.Config{
		RootDir:    appCfg.Datapack.RootDir,
		Bucket:     appCfg.MinIO.Bucket,
		MaxEntries: appCfg.Datapack.MaxEntries,
		MaxBytes:   appCfg.Datapack.MaxBytes,
	}, objStorage)
	repo := datapack.Wrap(baseRepo, dataCache)

	rabbitQueue, err := mq.NewRabbitMQQueue(appCfg.RabbitMQ.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init rabbitmq failed", zap.Error(err))
		os.Exit(1)
	}
	jobQueue := queue.New(rabbitQueue)
	defer func() {
		_ = jobQueue.Close()
	}()

	var publisher coordinator.Publisher
	if len(appCfg.Kafka.Brokers) > 0 {
		kafkaBus, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka event bus failed", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			_ = kafkaBus.Close()
		}()
		publisher = events.NewMQPublisher(kafkaBus, appCfg.Kafka.StatusTopic)
	}

	localProfiles := profile.NewLocalRepository(appCfg.Language.Profiles)
	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig(), localProfiles)
	if err != nil {
		logger.Error(ctx, "init sandbox engine failed", zap.Error(err))
		os.Exit(1)
	}
	exec := executor.New(eng)

	if err := os.MkdirAll(appCfg.Worker.WorkDir, 0755); err != nil {
		logger.Error(ctx, "create work dir failed", zap.Error(err))
		os.Exit(1)
	}

	coord := coordinator.New(repo, exec, localProfiles, appCfg.Worker.WorkDir, publisher)

	consumeCtx, cancelConsume := context.WithCancel(ctx)
	consumeErrCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge worker consuming jobs",
			zap.Int("max_concurrent_jobs", appCfg.Worker.MaxConcurrentJobs))
		consumeErrCh <- jobQueue.Consume(consumeCtx, appCfg.Worker.MaxConcurrentJobs, coord.Handle)
	}()

	httpServer := buildHTTPServer(appCfg.Server, repo, mysqlDB, rabbitQueue)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		cancelConsume()
		os.Exit(1)
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge worker status server started", zap.String("addr", appCfg.Server.Addr))
		httpErrCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case err := <-consumeErrCh:
		if err != nil {
			logger.Error(ctx, "job consumption stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	cancelConsume()
	shutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownTimeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, repo repository.Repository, mysqlDB db.Database, broker mq.MessageQueue) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mysqlDB.Ping(ctx); err != nil {
			response.ErrorWithCode(c, appErr.ServiceUnavailable, "database unreachable")
			return
		}
		if err := broker.Ping(ctx); err != nil {
			response.ErrorWithCode(c, appErr.ServiceUnavailable, "job queue unreachable")
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	})

	router.GET("/api/v1/submissions/:id", func(c *gin.Context) {
		submission, err := repo.GetSubmission(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				response.NotFound(c, "submission not found")
				return
			}
			response.InternalServerError(c, err)
			return
		}
		response.Success(c, gin.H{
			"submission_id": submission.ID,
			"status":        submission.Status,
			"verdict":       submission.Verdict,
			"time_ms":       submission.ExecutionTimeMs,
			"memory_kb":     submission.ExecutionMemoryKB,
			"error_message": submission.ErrorMessage,
		})
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
