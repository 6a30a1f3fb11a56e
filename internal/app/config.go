package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// Config описывает настройки запуска оркестратора.
type Config struct {
	MetricsAddr string

	// PostgresDSN пустой — работаем на in-memory хранилище (dev/demo режим).
	PostgresDSN string

	// KafkaBrokers пустой — change-feed не подключается, уведомления уходят в лог.
	KafkaBrokers []string
	KafkaGroupID string

	SweepInterval    time.Duration
	SweepParallel    int
	SweepStartDelay  time.Duration
	DispatchInterval time.Duration
	NotifyQueueSize  int

	// EntityTypes ограничивает sweep подмножеством типов; пусто — все типы.
	EntityTypes []domain.EntityType

	// PendingBacklogThreshold — порог деградации health check'а по глубине очереди.
	PendingBacklogThreshold int
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:             ":9090",
		KafkaGroupID:            "fos-orchestrator",
		SweepInterval:           30 * time.Second,
		SweepParallel:           8,
		SweepStartDelay:         5 * time.Second,
		DispatchInterval:        10 * time.Second,
		NotifyQueueSize:         256,
		PendingBacklogThreshold: 500,
	}
}

// LoadConfig читает конфигурацию из переменных окружения поверх значений по умолчанию.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.MetricsAddr = envString("FOS_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = envString("FOS_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaGroupID = envString("FOS_KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.KafkaBrokers = envStrings("KAFKA_BROKERS")

	cfg.SweepInterval = envDuration("FOS_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.SweepStartDelay = envDuration("FOS_SWEEP_START_DELAY", cfg.SweepStartDelay)
	cfg.DispatchInterval = envDuration("FOS_DISPATCH_INTERVAL", cfg.DispatchInterval)
	cfg.SweepParallel = envInt("FOS_SWEEP_PARALLEL", cfg.SweepParallel)
	cfg.NotifyQueueSize = envInt("FOS_NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize)
	cfg.PendingBacklogThreshold = envInt("FOS_PENDING_BACKLOG_THRESHOLD", cfg.PendingBacklogThreshold)

	for _, raw := range envStrings("FOS_ENTITY_TYPES") {
		cfg.EntityTypes = append(cfg.EntityTypes, domain.EntityType(strings.ToUpper(raw)))
	}

	return cfg
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envStrings(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
