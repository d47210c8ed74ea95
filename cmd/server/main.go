package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/api"
	"github.com/brewstore/brewstore-server/internal/app"
	"github.com/brewstore/brewstore-server/internal/app/maintenance"
	iauth "github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/auth/mfa"
	"github.com/brewstore/brewstore-server/internal/database"
	"github.com/brewstore/brewstore-server/internal/services"
	"github.com/brewstore/brewstore-server/pkg/logger"
	"github.com/brewstore/brewstore-server/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("brewstore-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	tokenSvc, err := iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise token service: %w", err)
	}

	totpSvc, err := mfa.NewTOTPService(db)
	if err != nil {
		return fmt.Errorf("initialise totp service: %w", err)
	}

	otpSvc, err := iauth.NewOTPService(db, mailer, cfg.Auth.OTPServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise otp service: %w", err)
	}

	lockoutGuard, err := iauth.NewLockoutGuard(db, cfg.Auth.LockoutGuardConfig())
	if err != nil {
		return fmt.Errorf("initialise lockout guard: %w", err)
	}

	recaptchaSvc, err := services.NewRecaptchaService(services.RecaptchaConfig{
		Enabled:  cfg.Recaptcha.Enabled,
		Secret:   cfg.Recaptcha.Secret,
		Endpoint: cfg.Recaptcha.Endpoint,
		Timeout:  cfg.Recaptcha.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise recaptcha service: %w", err)
	}

	policy := iauth.NewPasswordPolicy()

	loginSvc, err := iauth.NewLoginService(iauth.LoginDeps{
		DB:        db,
		Tokens:    tokenSvc,
		TOTP:      totpSvc,
		OTP:       otpSvc,
		Policy:    policy,
		Lockout:   lockoutGuard,
		Recaptcha: recaptchaSvc,
	})
	if err != nil {
		return fmt.Errorf("initialise login service: %w", err)
	}

	resetSvc, err := services.NewPasswordResetService(db, mailer, policy, services.PasswordResetConfig{
		FrontendURL: cfg.Frontend.URL,
	})
	if err != nil {
		return fmt.Errorf("initialise password reset service: %w", err)
	}

	cleaner, err := maintenance.NewCleaner(db)
	if err != nil {
		return fmt.Errorf("initialise maintenance jobs: %w", err)
	}
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(cfg, api.Deps{
		DB:     db,
		Tokens: tokenSvc,
		Login:  loginSvc,
		TOTP:   totpSvc,
		OTP:    otpSvc,
		Resets: resetSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("retrieve database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
