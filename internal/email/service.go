package email

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/herald/api/internal/config"
	"github.com/herald/api/internal/metrics"
)

// Service renders notification templates and hands them to a Sender.
type Service struct {
	sender   Sender
	renderer *Renderer
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	enabled  bool
}

func NewService(cfg config.EmailConfig, m *metrics.Metrics) (*Service, error) {
	var sender Sender
	if cfg.Enabled {
		sender = NewSMTPSender(cfg)
	} else {
		sender = &NoOpSender{}
	}
	s, err := NewServiceWithSender(sender, cfg.Enabled, m)
	if err != nil {
		return nil, err
	}
	if cfg.Enabled && cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return s, nil
}

// NewServiceWithSender is used when delivery goes somewhere other than SMTP.
func NewServiceWithSender(sender Sender, enabled bool, m *metrics.Metrics) (*Service, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Service{
		sender:   sender,
		renderer: renderer,
		metrics:  m,
		enabled:  enabled,
	}, nil
}

// WithLimiter throttles delivery. A nil limiter removes the throttle.
func (s *Service) WithLimiter(l *rate.Limiter) *Service {
	s.limiter = l
	return s
}

func (s *Service) IsEnabled() bool {
	return s.enabled
}

// Send renders t with data and delivers it to data.To. It blocks while the
// outbound rate is exhausted.
func (s *Service) Send(ctx context.Context, t Template, data Data) error {
	subject, body, err := s.renderer.Render(t, data)
	if err != nil {
		s.metrics.EmailSent(string(t), err)
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.metrics.EmailSent(string(t), err)
			return err
		}
	}

	err = s.sender.Send(ctx, Message{
		From:     data.From,
		To:       data.To,
		Subject:  subject,
		TextBody: body,
	})
	s.metrics.EmailSent(string(t), err)
	return err
}
