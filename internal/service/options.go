package service

import (
	"time"

	"github.com/shenikar/dispatch_coordination_system/internal/metrics"
)

// Options - общие настройки сервисов команд
type Options struct {
	// PendingTTL - сколько ждать подтверждения, прежде чем разрешить Pending ошибкой ErrUnavailable
	PendingTTL time.Duration
	// NotifyTimeout ограничивает публикацию уведомления
	NotifyTimeout time.Duration
	// WriteTimeout ограничивает фоновые записи (отзыв проигравшего назначения)
	WriteTimeout time.Duration

	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PendingTTL <= 0 {
		o.PendingTTL = 2 * time.Minute
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
