package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
)

// OTPSender delivers a one-time code to the user out of band.
type OTPSender interface {
	Send(ctx context.Context, email, phone, code string) error
}

// LogSender stands in when no mail or SMS gateway is configured; the code
// lands in the worker log. Development use only.
type LogSender struct{}

func (LogSender) Send(_ context.Context, email, phone, code string) error {
	slog.Info("OTP issued", "email", email, "phone", phone, "code", code)
	return nil
}

// OTPWorker issues a verification code and delivers it.
type OTPWorker struct {
	otpSvc *auth.OTPService
	sender OTPSender
}

func NewOTPWorker(otpSvc *auth.OTPService, sender OTPSender) *OTPWorker {
	if sender == nil {
		sender = LogSender{}
	}
	return &OTPWorker{otpSvc: otpSvc, sender: sender}
}

func (w *OTPWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.OTPDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	code, err := w.otpSvc.Issue(ctx, payload.Email, payload.Phone)
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}

	if err := w.sender.Send(ctx, payload.Email, payload.Phone, code); err != nil {
		return fmt.Errorf("deliver code: %w", err)
	}
	return nil
}
