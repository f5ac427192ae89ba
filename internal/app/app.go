package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/touristguard/internal/auth"
	"github.com/hitoshi/touristguard/internal/config"
	"github.com/hitoshi/touristguard/internal/contact"
	"github.com/hitoshi/touristguard/internal/database"
	"github.com/hitoshi/touristguard/internal/events"
	"github.com/hitoshi/touristguard/internal/handler"
	"github.com/hitoshi/touristguard/internal/logger"
	"github.com/hitoshi/touristguard/internal/metrics"
	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/notify"
	"github.com/hitoshi/touristguard/internal/queue"
	"github.com/hitoshi/touristguard/internal/repository"
	"github.com/hitoshi/touristguard/internal/security"
	"github.com/hitoshi/touristguard/internal/sos"
	"github.com/hitoshi/touristguard/internal/user"
	"github.com/hitoshi/touristguard/internal/worker/delivery"
	"github.com/hitoshi/touristguard/internal/worker/reset"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドを省略した場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// signalContext はSIGINT/SIGTERMでキャンセルされるcontextを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// dispatchStack はserve/workerで共有する送信系の依存関係。
type dispatchStack struct {
	registry  *prometheus.Registry
	metrics   *metrics.Collector
	channel   notify.Channel
	queue     queue.Queue
	redis     *redis.Client
	publisher events.Publisher
}

// newDispatchStack はメトリクス、SMSチャネル、補助送信キュー、イベント発行先を構築する。
func newDispatchStack(ctx context.Context, cfg *config.Config) (*dispatchStack, error) {
	rt := &dispatchStack{registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = metrics.NewCollector(rt.registry)
	rt.channel = newChannel(cfg, rt.metrics)

	client, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if client != nil {
		rt.redis = client
		rt.queue = queue.NewRedisQueue(client, "")
	} else {
		rt.queue = queue.NewMemoryQueue()
	}

	rt.publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.publisher = p
	}
	return rt, nil
}

func (rt *dispatchStack) close() {
	if rt.publisher != nil {
		rt.publisher.Close()
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
}

// newChannel は認証情報が揃っていればTwilio、そうでなければデモチャネルを返す。
func newChannel(cfg *config.Config, m metrics.MetricsCollector) notify.Channel {
	if !cfg.LiveSMS() {
		slog.Warn("SMS credentials are not configured, running in demo mode")
		return notify.NewDemoChannel(slog.Default())
	}
	return notify.NewTwilioChannel(
		&http.Client{Timeout: cfg.SendTimeout},
		slog.Default(),
		m,
		notify.TwilioConfig{
			AccountSID: cfg.SMSAccountSID,
			AuthToken:  cfg.SMSAuthToken,
			BaseURL:    cfg.SMSAPIBaseURL,
			Timeout:    cfg.SendTimeout,
		},
	)
}

func newDeliveryScheduler(cfg *config.Config, rt *dispatchStack) *delivery.Scheduler {
	return delivery.NewScheduler(rt.queue, rt.channel, rt.metrics, slog.Default(), delivery.Config{
		MaxConcurrency: cfg.DeliveryMaxConcurrent,
		MaxAttempts:    cfg.RepeatMaxAttempts,
		SendTimeout:    cfg.SendTimeout,
	})
}

// rateLimiterConfig はRATE_LIMIT_GENERAL（req/min）をreq/secに変換した設定を返す。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// Redisが未設定の場合は補助送信の配信ループも同じプロセスで動かす。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 送信系の依存関係
	rt, err := newDispatchStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)
	alertRepo := repository.NewPostgresAlertRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, cfg.AdminJWTTTL)
	authService := auth.NewService(userRepo, adminRepo, tokens, sanitizer)
	userService := user.NewService(userRepo, slog.Default())
	contactService := contact.NewService(contactRepo, sanitizer)

	dispatcher := sos.NewDispatcher(sos.DispatcherDeps{
		Users:     userRepo,
		Contacts:  contactRepo,
		Alerts:    alertRepo,
		Channel:   rt.channel,
		Repeats:   rt.queue,
		Publisher: rt.publisher,
		Sanitizer: sanitizer,
		Metrics:   rt.metrics,
		Logger:    slog.Default(),
	}, sos.DispatcherConfig{
		FromNumber:      cfg.SMSFromNumber,
		PoliceNumber:    cfg.PoliceNumber,
		SendTimeout:     cfg.SendTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
		RepeatSends:     cfg.RepeatSends,
		RepeatSpacing:   cfg.RepeatSpacing,
	})
	queries := sos.NewAlertQueries(alertRepo, userRepo)
	lifecycle := sos.NewLifecycleManager(alertRepo, rt.publisher, sanitizer, rt.metrics, slog.Default())

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenValidator:    tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(rt.registry),

		AuthService:    authService,
		ProfileService: userService,

		EmergencyService: handler.NewEmergencyServiceAdapter(dispatcher, queries),
		ContactService:   contactService,

		AdminService: handler.NewAdminServiceAdapter(queries, lifecycle, userService),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("sms_channel", rt.channel.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	if rt.redis == nil {
		scheduler := newDeliveryScheduler(cfg, rt)
		g.Go(func() error {
			slog.Info("in-process delivery scheduler starting")
			scheduler.Start(gctx, cfg.DeliveryPollInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// Redis上の補助送信キューを監視し、期限到来したタスクを配信する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.RedisURL == "" {
		return errors.New("worker mode requires REDIS_URL")
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := newDispatchStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	go serveWorkerMetrics(ctx, cfg, rt.registry)

	slog.Info("worker starting",
		slog.Duration("poll_interval", cfg.DeliveryPollInterval),
		slog.Int("max_concurrent", cfg.DeliveryMaxConcurrent),
		slog.String("sms_channel", rt.channel.Name()),
	)

	// 配信スケジューラをメインgoroutineで実行（ブロッキング）
	newDeliveryScheduler(cfg, rt).Start(ctx, cfg.DeliveryPollInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// serveWorkerMetrics はワーカーの /metrics と /health を公開する。
func serveWorkerMetrics(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/health", handler.NewHealthHandler(nil))

	server := &http.Server{Addr: ":" + cfg.ServerPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("worker metrics server error", slog.String("error", err.Error()))
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runCreateAdmin は管理者アカウントを作成する。同名の管理者が存在する場合はパスワードを更新する。
func runCreateAdmin(cfg *config.Config, username, password string) error {
	ctx, stop := signalContext()
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, cfg.AdminJWTTTL)
	authService := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresAdminRepo(db),
		tokens,
		security.NewTextSanitizer(),
	)

	admin, err := authService.CreateAdmin(ctx, username, password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin account saved", slog.String("username", admin.Username))
	return nil
}

// runResetData は全てのアラート記録を削除する。confirmedが偽の場合は何もしない。
func runResetData(cfg *config.Config, confirmed bool) error {
	if !confirmed {
		return errors.New("reset-data deletes every SOS alert record; pass --yes to confirm")
	}

	ctx, stop := signalContext()
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	return resetAlerts(ctx, db)
}

func resetAlerts(ctx context.Context, db *sql.DB) error {
	deleted, err := reset.NewResetJob(db, slog.Default()).Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("alert records reset", slog.Int64("deleted", deleted))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はSERVER_PORTを返す。未設定なら8080。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

func logStart(command string, cfg *config.Config) {
	slog.Info("starting application",
		slog.String("command", command),
		slog.String("port", cfg.ServerPort),
		slog.Bool("live_sms", cfg.LiveSMS()),
	)
}
