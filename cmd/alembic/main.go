package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/config"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/database"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/ingest"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/monitoring"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/server"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/sink"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/store"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/version"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/warehouse"
)

const serviceName = "alembic"

func main() {
	logger := logging.NewLoggerWithService(serviceName)

	config.LoadEnv(logger)

	logger.Info("Starting Alembic (Telegram Medical Warehouse)")

	databaseURL := config.RequireEnv("DATABASE_URL")

	pgConfig := database.DefaultConfig()
	pgConfig.URL = databaseURL
	db := database.MustConnect(pgConfig, logger)
	defer db.Close()

	warehouseStore := store.NewStore(db, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := warehouseStore.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure warehouse schema")
	}

	calendarStart := mustParseDate(config.GetEnv("CALENDAR_START", "2024-01-01"), logger)
	calendarEnd := mustParseDate(config.GetEnv("CALENDAR_END", "2026-12-31"), logger)
	if inserted, err := warehouseStore.PopulateDateDimension(ctx, calendarStart, calendarEnd); err != nil {
		logger.WithError(err).Fatal("Failed to populate date dimension")
	} else if inserted > 0 {
		logger.WithField("rows", inserted).Info("Extended date dimension")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)

	runs, stageDuration, rows := metricsCollector.CreatePipelineMetrics()
	pipelineMetrics := &warehouse.Metrics{
		Runs:          runs,
		StageDuration: stageDuration,
		Rows:          rows,
	}

	healthChecker.AddCheck("postgres", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": databaseURL,
	}))

	pipelineOpts := []warehouse.Option{
		warehouse.WithMetrics(pipelineMetrics),
		warehouse.WithReportDir(config.GetEnv("REPORT_DIR", "data/reports")),
	}

	// Optional ClickHouse mirror
	if clickhouseHost := config.GetEnv("CLICKHOUSE_HOST", ""); clickhouseHost != "" {
		chConfig := database.DefaultClickHouseConfig()
		chConfig.Addr = []string{clickhouseHost}
		chConfig.Database = config.GetEnv("CLICKHOUSE_DB", "telegram_warehouse")
		chConfig.Username = config.GetEnv("CLICKHOUSE_USER", "default")
		chConfig.Password = config.GetEnv("CLICKHOUSE_PASSWORD", "")
		clickhouse := database.MustConnectClickHouseNative(chConfig, logger)
		defer clickhouse.Close()

		chSink := sink.NewClickHouseSink(clickhouse, logger)
		if err := chSink.EnsureTables(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to ensure ClickHouse mirror tables")
		}
		pipelineOpts = append(pipelineOpts, warehouse.WithSink(chSink))
		healthChecker.AddCheck("clickhouse", monitoring.ClickHouseNativeHealthCheck(clickhouse))
	}

	pipeline := warehouse.NewPipeline(warehouseStore, logger, pipelineOpts...)

	// Optional Kafka ingest of raw messages and detections
	if brokersEnv := config.GetEnv("KAFKA_BROKERS", ""); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		groupID := config.GetEnv("KAFKA_GROUP_ID", serviceName)
		clientID := config.GetEnv("KAFKA_CLIENT_ID", serviceName)

		kafkaMessages, kafkaDuration := metricsCollector.CreateKafkaMetrics()
		consumer, err := ingest.NewConsumer(brokers, groupID, clientID, logger, kafkaMessages, kafkaDuration)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Close()

		ingest.NewHandlers(warehouseStore, logger).Register(consumer)
		healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.Client()))

		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Kafka consumer error")
			}
		}()
		logger.WithField("brokers", brokersEnv).Info("Consuming raw ingest topics from Kafka")
	}

	// One-shot file loads from the data lake
	loader := ingest.NewLoader(warehouseStore, logger)
	if dir := config.GetEnv("LOAD_MESSAGES_DIR", ""); dir != "" {
		if _, err := loader.LoadMessageDir(ctx, dir); err != nil {
			logger.WithError(err).Fatal("Failed to load message dumps")
		}
	}
	if path := config.GetEnv("LOAD_DETECTIONS_FILE", ""); path != "" {
		if _, err := loader.LoadDetections(ctx, path); err != nil {
			logger.WithError(err).Fatal("Failed to load detection results")
		}
	}

	if config.GetEnvBool("ENABLE_HEALTH_ENDPOINT", true) {
		router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
		go func() {
			if err := server.Start(ctx, server.DefaultConfig(serviceName, "18080"), router, logger); err != nil {
				logger.WithError(err).Error("Health server error")
			}
		}()
	}

	if config.GetEnvBool("RUN_ONCE", false) {
		if _, err := pipeline.Run(ctx); err != nil {
			logger.WithError(err).Fatal("Pipeline run failed")
		}
		logger.Info("Alembic finished single run")
		return
	}

	interval := config.GetEnvDuration("PIPELINE_INTERVAL", 24*time.Hour)
	logger.WithField("interval", interval.String()).Info("Alembic started - running pipeline on interval")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First run happens immediately; failures keep the service alive so
	// the next tick can retry after the cause clears.
	if _, err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("Pipeline run failed")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down Alembic...")
			logger.Info("Alembic stopped")
			return
		case <-ticker.C:
			if _, err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Pipeline run failed")
			}
		}
	}
}

func mustParseDate(value string, logger logging.Logger) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		logger.WithError(err).Fatalf("Invalid date %q, expected YYYY-MM-DD", value)
	}
	return t
}
