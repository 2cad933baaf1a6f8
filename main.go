package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"promptoon-server/modules/common/config"
	"promptoon-server/modules/common/gemini"
	"promptoon-server/modules/common/logger"
	"promptoon-server/modules/common/middleware"
	"promptoon-server/modules/common/quota"
	"promptoon-server/modules/common/redis"
	"promptoon-server/modules/common/storage"
	"promptoon-server/modules/prompt"
	"promptoon-server/modules/web"
)

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logFile, err := logger.Setup(cfg.LogDir)
	if err != nil {
		log.Printf("⚠️  File logging disabled: %v", err)
	} else {
		defer logFile.Close()
	}

	ctx := context.Background()

	geminiClient, err := gemini.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create Gemini client: %v", err)
	}

	// 프록시/엔드포인트 점검 (실패해도 기동은 계속)
	runStartupChecks(ctx, cfg, geminiClient)

	store, err := storage.NewTransientStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("❌ Failed to prepare upload dir: %v", err)
	}

	rdb := redis.Connect(cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	limiter := quota.NewLimiter(rdb, cfg.DailyLimit)

	assets := prompt.LoadAssets(cfg.PromptDir)
	renderer, err := web.NewRenderer(cfg.GeminiAllowedModels, cfg.GeminiModel, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("❌ Failed to load templates: %v", err)
	}

	service := prompt.NewService(cfg, geminiClient, assets, store, limiter)
	handler := prompt.NewHandler(service, renderer, cfg.MaxUploadBytes)

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(middleware.Recovery, middleware.RequestID, middleware.AccessLog, middleware.CORS)

	// 라우트 설정
	r.HandleFunc("/", renderer.HandleIndex).Methods("GET")
	r.HandleFunc("/generate_prompt", handler.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", prompt.HandleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.PathPrefix("/static/").Handler(web.StaticHandler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// 서비스가 REQUEST_TIMEOUT에서 에러 응답을 쓰므로 그보다 길게
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("🚀 Promptoon Server starting on port %s", cfg.Port)
		log.Printf("🖼️  Upload page: http://localhost:%s/", cfg.Port)
		log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
		log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 종료 신호 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}
	log.Println("👋 Server exited")
}

// runStartupChecks - 프록시 연결과 Gemini 엔드포인트를 동시에 확인, 결과는 경고로만 남긴다
func runStartupChecks(ctx context.Context, cfg *config.Config, client *gemini.Client) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var g errgroup.Group
	if proxyURL := cfg.ProxyURL(); proxyURL != "" {
		g.Go(func() error {
			if err := gemini.CheckProxy(ctx, proxyURL, gemini.ProxyCheckTimeout); err != nil {
				log.Printf("⚠️  [Startup] Proxy check failed: %v", err)
				return err
			}
			log.Printf("✅ [Startup] Proxy reachable: %s", proxyURL)
			return nil
		})
	}
	g.Go(func() error {
		if err := client.CheckConnectivity(ctx); err != nil {
			log.Printf("⚠️  [Startup] Gemini endpoint check failed: %v", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Println("⚠️  [Startup] Connectivity checks reported problems, requests may fail until they are resolved")
	}
}
