package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/tank"
)

// ErrUnknownService is returned for commands no handler exists for.
var ErrUnknownService = errors.New("unknown service")

// Service is the mutating surface of a tank monitor.
type Service interface {
	RecordRefill(ctx context.Context, liters float64, price *float64, ts *time.Time) (*engine.Result, error)
	RecordRefillFromInput(ctx context.Context) (*engine.Result, error)
	UpdateLevel(ctx context.Context, level float64) (*engine.Result, error)
	UpdatePrice(ctx context.Context, price float64) (*engine.Result, error)
	SetHeatingMode(ctx context.Context, mode string) (*engine.Result, error)
	SetStrategy(ctx context.Context, name string, customAmount *float64) (*engine.Result, error)
	SetRefillInput(ctx context.Context, liters float64) (*engine.Result, error)
}

// Dispatch parses payload for service and applies it. defaultCustom is the
// configured amount used when the custom strategy is selected without one.
func Dispatch(ctx context.Context, svc Service, service string, payload []byte, defaultCustom *float64) (*engine.Result, error) {
	switch service {
	case tank.ServiceRecordRefill:
		cmd, err := ParseRefill(payload)
		if err != nil {
			return nil, err
		}
		return svc.RecordRefill(ctx, cmd.Liters, cmd.PricePerLiter, cmd.RefillDate)

	case tank.ServiceRecordFromInput:
		return svc.RecordRefillFromInput(ctx)

	case tank.ServiceUpdateLevel:
		percent, err := ParseNumber(payload, "level_percent")
		if err != nil {
			return nil, err
		}
		level, err := LevelFraction(percent)
		if err != nil {
			return nil, err
		}
		return svc.UpdateLevel(ctx, level)

	case tank.ServiceUpdatePrice:
		price, err := ParseNumber(payload, "price_per_liter")
		if err != nil {
			return nil, err
		}
		if err := ValidatePrice(price); err != nil {
			return nil, err
		}
		return svc.UpdatePrice(ctx, price)

	case tank.ServiceSetHeatingMode:
		mode, err := ParseString(payload, "mode")
		if err != nil {
			return nil, err
		}
		return svc.SetHeatingMode(ctx, mode)

	case tank.ServiceSetStrategy:
		cmd, err := ParseStrategy(payload, defaultCustom)
		if err != nil {
			return nil, err
		}
		return svc.SetStrategy(ctx, cmd.Strategy, cmd.CustomAmount)

	case tank.ServiceSetRefillInput:
		liters, err := ParseNumber(payload, "liters")
		if err != nil {
			return nil, err
		}
		if liters < 0 || liters > MaxRefillLiters {
			return nil, invalid("liters", "%v is outside [0, %v]", liters, MaxRefillLiters)
		}
		return svc.SetRefillInput(ctx, liters)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
}

// TopicResolver maps a command topic to a service name.
type TopicResolver interface {
	ServiceFromTopic(topic string) (string, bool)
}

// Handler applies commands received over MQTT. Invalid commands are logged
// and dropped; the tank state is left untouched.
type Handler struct {
	svc           Service
	topics        TopicResolver
	defaultCustom *float64
	timeout       time.Duration
	onResult      func(*engine.Result)
	logger        *logrus.Logger
}

// NewHandler creates a command handler. onResult, when set, receives the
// evaluation that follows every applied command.
func NewHandler(svc Service, topics TopicResolver, defaultCustom *float64, timeout time.Duration, onResult func(*engine.Result), logger *logrus.Logger) *Handler {
	return &Handler{
		svc:           svc,
		topics:        topics,
		defaultCustom: defaultCustom,
		timeout:       timeout,
		onResult:      onResult,
		logger:        logger,
	}
}

// HandleMessage is an MQTT message callback.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	service, ok := h.topics.ServiceFromTopic(topic)
	if !ok {
		h.logger.WithField("topic", topic).Debug("Ignoring message on unexpected topic")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	res, err := Dispatch(ctx, h.svc, service, payload, h.defaultCustom)
	if err != nil {
		var verr *engine.ValidationError
		entry := h.logger.WithError(err).WithFields(logrus.Fields{
			"service": service,
			"payload": string(payload),
		})
		if errors.As(err, &verr) || errors.Is(err, ErrUnknownService) {
			entry.Warn("Rejected command")
		} else {
			entry.Error("Command failed")
		}
		return
	}

	h.logger.WithField("service", service).Info("Applied command")
	if h.onResult != nil && res != nil {
		h.onResult(res)
	}
}
