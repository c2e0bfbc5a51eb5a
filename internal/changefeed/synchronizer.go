package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/metrics"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
)

// Options - настройки синхронизатора
type Options struct {
	// Joined - сущность читается в соединенном виде (например, responder_details + profiles).
	// Поток доставляет только колонки изменившейся таблицы, поэтому insert/update
	// приводят к точечному перечитыванию записи из Source вместо разбора payload.
	Joined bool

	Logger  *logrus.Logger
	Metrics *metrics.Metrics

	// Интервалы повторов при переподключении
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Synchronizer создает подписки на одну сущность
type Synchronizer[T Record] struct {
	entity  models.Entity
	source  Source[T]
	feed    Feed
	decode  Decoder[T]
	joined  bool
	logger  *logrus.Logger
	metrics *metrics.Metrics

	initialInterval time.Duration
	maxInterval     time.Duration
}

func New[T Record](entity models.Entity, source Source[T], feed Feed, decode Decoder[T], opts Options) *Synchronizer[T] {
	if decode == nil {
		decode = JSONDecoder[T]()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	initial := opts.InitialInterval
	if initial <= 0 {
		initial = defaultInitialInterval
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}
	return &Synchronizer[T]{
		entity:          entity,
		source:          source,
		feed:            feed,
		decode:          decode,
		joined:          opts.Joined,
		logger:          logger,
		metrics:         opts.Metrics,
		initialInterval: initial,
		maxInterval:     maxInterval,
	}
}

func (s *Synchronizer[T]) Entity() models.Entity { return s.entity }

// Subscribe открывает поток, выполняет первую полную загрузку и начинает
// применять события. ctx ограничивает только первую загрузку; дальше подписка
// живет до Close. События, пришедшие во время загрузки, буферизуются
// и применяются после нее.
func (s *Synchronizer[T]) Subscribe(ctx context.Context, filter Filter[T]) (*Subscription[T], error) {
	sub := newSubscription(s, filter)

	stop := context.AfterFunc(ctx, sub.cancel)
	stream, err := sub.attach()
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = sub.Close()
		close(sub.done)
		return nil, fmt.Errorf("changefeed: could not subscribe to %s: %w", s.entity, err)
	}

	go sub.run(stream)
	return sub, nil
}
