package send

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// RetryConfig конфигурация retry-логики обращений к TMS.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryableSender оборачивает SendService retry-логикой с экспоненциальной задержкой.
type RetryableSender struct {
	sender domain.SendService
	config RetryConfig
	logger *log.Entry
}

var _ domain.SendService = (*RetryableSender)(nil)

// NewRetryableSender создаёт sender с retry-логикой.
func NewRetryableSender(sender domain.SendService, config RetryConfig, logger *log.Entry) *RetryableSender {
	if logger == nil {
		logger = log.New().WithField("component", "retryable-sender")
	}

	return &RetryableSender{
		sender: sender,
		config: config,
		logger: logger,
	}
}

// Send отправляет заказ с повторами при транспортных сбоях.
func (rs *RetryableSender) Send(entity domain.TrackedEntity) (json.RawMessage, error) {
	var response json.RawMessage
	err := rs.executeWithRetry("Send", entity.Key, func() error {
		var sendErr error
		response, sendErr = rs.sender.Send(entity)
		return sendErr
	})
	return response, err
}

// Cancel аннулирует заказ с повторами при транспортных сбоях.
func (rs *RetryableSender) Cancel(entity domain.TrackedEntity, prior json.RawMessage) error {
	return rs.executeWithRetry("Cancel", entity.Key, func() error {
		return rs.sender.Cancel(entity, prior)
	})
}

func (rs *RetryableSender) executeWithRetry(operation, entityKey string, fn func() error) error {
	var lastErr error
	delay := rs.config.InitialDelay

	for attempt := 1; attempt <= rs.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				rs.logger.WithFields(log.Fields{
					"operation":  operation,
					"entity_key": entityKey,
					"attempt":    attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !rs.shouldRetry(err) {
			rs.logger.WithFields(log.Fields{
				"operation":  operation,
				"entity_key": entityKey,
				"error":      err,
			}).Warn("Operation failed with non-retryable error")
			return err
		}

		if attempt < rs.config.MaxAttempts {
			rs.logger.WithFields(log.Fields{
				"operation":  operation,
				"entity_key": entityKey,
				"attempt":    attempt,
				"delay":      delay,
				"error":      err,
			}).Warn("Operation failed, retrying")

			time.Sleep(delay)

			delay = time.Duration(float64(delay) * rs.config.BackoffFactor)
			if delay > rs.config.MaxDelay {
				delay = rs.config.MaxDelay
			}
		}
	}

	rs.logger.WithFields(log.Fields{
		"operation":    operation,
		"entity_key":   entityKey,
		"max_attempts": rs.config.MaxAttempts,
		"error":        lastErr,
	}).Error("Operation failed after all retry attempts")

	return lastErr
}

// shouldRetry определяет, стоит ли повторять операцию при данной ошибке.
func (rs *RetryableSender) shouldRetry(err error) bool {
	// Бизнес-отказ TMS не лечится повтором.
	if errors.Is(err, domain.ErrSendRejected) {
		return false
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}

	// Транспортные и прочие неизвестные ошибки повторяем.
	return true
}

// CircuitBreaker защищает TMS от шторма повторов при её недоступности.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("Circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return domain.ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("Circuit breaker opened")
		}

		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("Circuit breaker closed")
	}
	cb.failures = 0

	return nil
}

// CircuitBreakerSender — SendService с circuit breaker защитой.
type CircuitBreakerSender struct {
	sender  domain.SendService
	breaker *CircuitBreaker
}

var _ domain.SendService = (*CircuitBreakerSender)(nil)

// NewCircuitBreakerSender создаёт sender с circuit breaker.
func NewCircuitBreakerSender(sender domain.SendService, breaker *CircuitBreaker) *CircuitBreakerSender {
	return &CircuitBreakerSender{
		sender:  sender,
		breaker: breaker,
	}
}

// Send отправляет заказ через circuit breaker.
func (cbs *CircuitBreakerSender) Send(entity domain.TrackedEntity) (json.RawMessage, error) {
	var response json.RawMessage
	err := cbs.breaker.Execute("Send", func() error {
		var sendErr error
		response, sendErr = cbs.sender.Send(entity)
		return sendErr
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// Cancel аннулирует заказ через circuit breaker.
func (cbs *CircuitBreakerSender) Cancel(entity domain.TrackedEntity, prior json.RawMessage) error {
	return cbs.breaker.Execute("Cancel", func() error {
		return cbs.sender.Cancel(entity, prior)
	})
}
