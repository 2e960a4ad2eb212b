package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio/internal/api"
	"studio/internal/config"
	"studio/internal/media"
	"studio/internal/model"
	"studio/internal/notify"
	"studio/internal/provider"
	"studio/internal/service"
	"studio/internal/storage"
	"studio/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	printToken := flag.Bool("operator-token", false, "print a JWT for the seeded operator and exit")
	flag.Parse()

	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	operator, err := model.SeedOperator(context.Background(), repo, cfg)
	if err != nil {
		logrus.WithError(err).Warn("failed to seed operator")
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	kie, err := provider.NewClient(provider.OptionsFromConfig(cfg))
	if err != nil {
		logrus.WithError(err).Error("failed to initialise kie client")
		return
	}

	// 预览、通知等后台任务共用一个有界队列
	pool := worker.NewPool(cfg.PreviewConcurrency, cfg.PreviewQueueSize)

	events := api.NewEventHub()
	notifiers := service.MultiNotifier{events}
	if cfg.NotifyWebhookURL != "" {
		hook, err := notify.NewWebhook(cfg.NotifyWebhookURL, nil, cfg.NotifyTimeout)
		if err != nil {
			logrus.WithError(err).Error("invalid notify webhook")
			return
		}
		notifiers = append(notifiers, hook)
	}

	previews := service.NewPreviewGenerator(repo, store, media.NewFFmpeg(cfg.FFmpegPath), pool, nil, service.PreviewOptions{
		Enabled:     cfg.PreviewEnabled,
		MaxWidth:    cfg.PreviewMaxWidth,
		ClipSeconds: cfg.PreviewClipSeconds,
	})

	syncer, err := service.NewSynchronizer(service.SynchronizerDeps{
		Repo:          repo,
		Fetcher:       kie,
		Materializer:  service.NewMaterializer(store, nil),
		Previews:      previews,
		Billing:       service.NewBillingAdjuster(repo, repo, cfg.BillingPrivilegedRoles),
		Durations:     service.NewDurationResolver(media.AudioProber{UseFFprobe: true}),
		Notifier:      notifiers,
		Tracker:       service.NewFirstGenerationTracker(repo),
		Spawner:       pool,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to initialise synchronizer")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, syncer, events)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	if *printToken {
		if operator == nil {
			logrus.Error("SEED_OPERATOR_EMAIL is not configured")
			os.Exit(1)
		}
		token, expiresAt, err := httpHandler.AuthManager().GenerateToken(operator)
		if err != nil {
			logrus.WithError(err).Error("failed to issue operator token")
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PollEnabled {
		poller := service.NewPoller(repo, syncer, service.PollerOptions{
			Interval:    cfg.PollInterval,
			Batch:       cfg.PollBatch,
			Concurrency: cfg.PollConcurrency,
			MinAge:      cfg.PollMinAge,
		})
		go poller.Run(ctx)
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	api.RegisterRoutes(r, httpHandler)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		if prefix := api.LocalStaticPrefix(cfg.StoragePublicBaseURL); prefix != "" {
			r.Static(prefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logrus.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE 长连接
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("服务器启动失败")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http server shutdown")
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("background tasks cancelled on shutdown")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Callback-Token")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  time.Since(start).String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
