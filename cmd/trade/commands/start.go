package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gtrdotmcs/auto-trade/internal/api"
	"github.com/gtrdotmcs/auto-trade/internal/api/handlers"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/internal/gateway"
	"github.com/gtrdotmcs/auto-trade/internal/gateway/rest"
	"github.com/gtrdotmcs/auto-trade/internal/gateway/sim"
	"github.com/gtrdotmcs/auto-trade/internal/scheduler"
	"github.com/gtrdotmcs/auto-trade/internal/scheduler/jobs"
	"github.com/gtrdotmcs/auto-trade/pkg/config"
	"github.com/gtrdotmcs/auto-trade/pkg/database"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
	"github.com/gtrdotmcs/auto-trade/pkg/redis"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "엔진 및 API 서버 시작",
	Long: `주문 실행 엔진과 REST API 서버를 시작합니다.

이 명령어는:
- 주문 제출 워커와 체결 모니터 시작
- 브로커 게이트웨이 연결 (sim 또는 rest)
- 스케줄러 시작 (정산/리포트/감사 플러시)
- HTTP API 서버 시작

Endpoints:
  GET    /health                     - Health check
  POST   /api/orders                 - 주문 제출
  GET    /api/orders                 - 주문 조회
  PATCH  /api/orders/{id}            - 주문 정정
  DELETE /api/orders/{id}            - 주문 취소
  GET    /api/positions              - 포지션 조회
  POST   /api/positions/reconcile    - 브로커 대사
  GET    /api/summary                - 실행 통계

Example:
  go run ./cmd/trade start
  go run ./cmd/trade start --port 8087`,
	RunE: runStart,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(startCmd)

	// Flags
	startCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Order Execution Engine ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":   cfg.Port,
		"env":    cfg.Env,
		"broker": cfg.Broker.Kind,
	}).Info("Initializing order execution engine")

	// 3. Create broker gateway
	broker, err := newBroker(cfg, log)
	if err != nil {
		return err
	}
	log.WithField("kind", cfg.Broker.Kind).Info("Broker gateway ready")

	// 4. Connect to Redis mark-price cache (optional)
	var marks *redis.MarkCache
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisClient.Enabled() {
		defer redisClient.Close()
		marks = redis.NewMarkCache(redisClient, "marks", 10*time.Second)
		log.Info("Connected to Redis mark cache")
	}

	// 5. Create engine
	engine := execution.NewEngine(cfg, broker, marks, log)

	// 6. Connect to database and register persistence handlers (optional)
	var repo *execution.Repository
	if cfg.Database.Enabled {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo = execution.NewRepository(db.Pool, log)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		repo.RegisterHandlers(engine.Events(), engine.Ledger())
		log.Info("Connected to database, persistence handlers registered")
	}

	// 7. Start engine (submission worker, monitor, event dispatcher)
	engine.Start()
	defer engine.Stop()

	// 8. Connect push execution stream (rest broker only)
	if cfg.Broker.Kind == "rest" && cfg.Broker.WSURL != "" {
		stream := rest.NewStream(cfg.Broker, log)
		stream.OnNotice(func(orderID string, snap contracts.StatusSnapshot) {
			if err := engine.ApplyPush(orderID, snap); err != nil {
				log.WithError(err).WithField("order_id", orderID).Warn("Push snapshot rejected")
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = stream.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect execution stream: %w", err)
		}
		defer stream.Disconnect()
	}

	// 9. Create scheduler and register jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewReconcileJob(engine, log, "")); err != nil {
		return fmt.Errorf("register reconcile job: %w", err)
	}
	if err := sched.AddJob(jobs.NewExportJob(engine, log, cfg.ExportDir, "")); err != nil {
		return fmt.Errorf("register export job: %w", err)
	}
	if repo != nil {
		if err := sched.AddJob(jobs.NewAuditFlushJob(repo, engine.Trail(), log, "")); err != nil {
			return fmt.Errorf("register audit flush job: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// 10. Create handlers and router
	orderHandler := handlers.NewOrderHandler(engine, log)
	positionHandler := handlers.NewPositionHandler(engine, log)
	reportHandler := handlers.NewReportHandler(engine, cfg.ExportDir, log)

	router := api.NewRouter(orderHandler, positionHandler, reportHandler, log)

	// 11. Create server
	server := api.New(cfg, log, router)

	// 12. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("Engine started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.Jobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// newBroker selects the broker gateway implementation
func newBroker(cfg *config.Config, log *logger.Logger) (gateway.Broker, error) {
	switch cfg.Broker.Kind {
	case "sim":
		return sim.New(), nil
	case "rest":
		return rest.New(cfg.Broker, log), nil
	default:
		return nil, fmt.Errorf("unknown broker kind: %s", cfg.Broker.Kind)
	}
}
