package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"moment-mint/internal/client"
	"moment-mint/internal/model"
	"moment-mint/internal/util"
)

// Dispatcher delivers a generated code to the user's messaging channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.OTPDispatch) error
}

// LogDispatcher writes codes to the log. Development only.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg model.OTPDispatch) error {
	d.logger.Info("OTP dispatched",
		zap.String("request_id", msg.RequestID),
		zap.String("mobile", util.MaskPhone(msg.MobileNumber)),
		zap.String("channel", msg.Channel),
		zap.String("code", msg.Code),
	)
	return nil
}

// KafkaDispatcher publishes codes for a delivery worker, keyed by mobile
// number so one number's messages stay ordered.
type KafkaDispatcher struct {
	producer *client.KafkaProducer
}

func NewKafkaDispatcher(producer *client.KafkaProducer) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg model.OTPDispatch) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode otp dispatch: %w", err)
	}
	headers := map[string]string{
		"request_id": msg.RequestID,
		"channel":    msg.Channel,
	}
	if err := d.producer.ProduceMessage(ctx, []byte(msg.MobileNumber), value, headers); err != nil {
		return fmt.Errorf("failed to dispatch otp: %w", err)
	}
	return nil
}
