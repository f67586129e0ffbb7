package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/mq"
	"github.com/jjudge-oj/identity/internal/notify"
	"github.com/jjudge-oj/identity/internal/storage"
	"go.uber.org/zap"
)

// Sink is the notification sink selected by NOTIFY_TRANSPORT together
// with the connections it holds open.
type Sink struct {
	notify.Sink
	closers []func() error
}

// Close releases the sink's connections.
func (s *Sink) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSink mails inline for the inline transport and publishes to the
// broker otherwise.
func NewSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Sink, error) {
	if cfg.Notify.Transport == config.TransportInline {
		return NewMailer(ctx, cfg, logger)
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{
		Sink:    notify.NewQueueSink(queue, cfg.Notify.Channel),
		closers: []func() error{queue.Close},
	}, nil
}

// NewMailer builds the SMTP mailer, loading template overrides from the
// configured bucket when there is one.
func NewMailer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Sink, error) {
	bucket, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var source notify.TemplateSource
	var closers []func() error
	if bucket != nil {
		source = bucket
		closers = append(closers, bucket.Close)
	}

	templates, err := notify.LoadTemplates(ctx, source, cfg.Templates.Prefix, logger)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return &Sink{Sink: notify.NewMailer(cfg.SMTP, templates), closers: closers}, nil
}
