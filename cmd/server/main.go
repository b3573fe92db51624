package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaladeofin/invoice-approvals/internal/application/service"
	appworkflow "github.com/kaladeofin/invoice-approvals/internal/application/workflow"
	"github.com/kaladeofin/invoice-approvals/internal/auth"
	"github.com/kaladeofin/invoice-approvals/internal/config"
	"github.com/kaladeofin/invoice-approvals/internal/email"
	"github.com/kaladeofin/invoice-approvals/internal/infrastructure/external/openai"
	"github.com/kaladeofin/invoice-approvals/internal/infrastructure/persistence/repository"
	"github.com/kaladeofin/invoice-approvals/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/kaladeofin/invoice-approvals/internal/interfaces/http"
	"github.com/kaladeofin/invoice-approvals/internal/policy"
	"github.com/kaladeofin/invoice-approvals/pkg/database"
	"github.com/kaladeofin/invoice-approvals/pkg/utils"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

// defaultPolicyText is used when no policy document is configured, so the
// classifier always has the core rules in its prompt.
const defaultPolicyText = `Invoices up to $250 with a verified supplier, a recent invoice date and no
disallowed items may be approved automatically. Alcohol, weapons and
gambling expenses are never approved automatically. Larger amounts require
human approval: above $2,500 by the finance manager, above $10,000 by an
executive.`

func main() {
	// Load .env if present, before configuration reads the environment
	_ = gotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	sqlDB, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := database.NewMigrator(sqlDB, logger).RunMigrations(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	db := sqlite.NewDB(sqlDB, logger)

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db, logger)
	approvalRepo := repository.NewApprovalRepository(db, logger)

	// Policy layer
	policyCfg := policy.Config{
		AutoApproveLimit:   cfg.Approval.AutoApproveLimit,
		StaleInvoiceDays:   cfg.Approval.StaleInvoiceDays,
		LowConfidenceFloor: cfg.Approval.LowConfidenceFloor,
		FinanceManagerOver: cfg.Approval.FinanceManagerOver,
		ExecutiveOver:      cfg.Approval.ExecutiveOver,
	}
	approvers := policy.Approvers{
		Manager:        policy.Approver{Name: cfg.Approval.Manager.Name, Email: cfg.Approval.Manager.Email},
		FinanceManager: policy.Approver{Name: cfg.Approval.FinanceManager.Name, Email: cfg.Approval.FinanceManager.Email},
		Executive:      policy.Approver{Name: cfg.Approval.Executive.Name, Email: cfg.Approval.Executive.Email},
	}

	// External collaborators
	classifier := openai.NewClassifier(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.Temperature,
		loadPolicyText(cfg.Approval.PolicyPath, logger),
		logger,
	)
	notifier := email.NewSender(email.Config{
		APIKey:    cfg.Email.SendGridAPIKey,
		FromName:  cfg.Email.FromName,
		FromEmail: cfg.Email.FromEmail,
		BaseURL:   cfg.Approval.BaseURL,
	}, logger)

	// Application services
	tokens := auth.NewTokenAuthority(cfg.Approval.TokenSecret)
	svcLogger := &zapLoggerAdapter{logger: logger}

	approvalService := service.NewApprovalService(approvalRepo, invoiceRepo, db, tokens, svcLogger)
	engine := appworkflow.NewEngine(classifier, approvalRepo, approvalService, notifier, policyCfg, approvers, logger)
	ingestService := service.NewIngestService(invoiceRepo, approvalService, engine, policyCfg, approvers, svcLogger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, ingestService, approvalService, svcLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

// loadPolicyText reads the approval policy document. A missing document is
// not fatal: the built-in summary keeps classification running.
func loadPolicyText(path string, logger *zap.Logger) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Policy document not readable, using built-in summary",
			zap.String("path", path), zap.Error(err))
		return defaultPolicyText
	}
	return string(raw)
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// used by the service and transport layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
