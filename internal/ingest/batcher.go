package ingest

/*
Batcher: асинхронная запись событий, принятых через POST /api/events.

- Неблокирующий прием: хендлер кладет события в буферизованный канал и сразу отвечает 202.
- Пакетная запись: воркер копит события и пишет их в хранилище пачкой
  по достижении BatchSize или по тикеру FlushInterval.
- После успешной записи в Sink (снимок аналитики в памяти) уходят только
  реально вставленные строки: повтор id не попадает в снимок дважды.
- Прием пакета атомарный: либо весь пакет в очереди, либо ни одного события.
- Drain на остановке: Stop закрывает канал, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrStopped    = errors.New("ingest: batcher is stopping")
	ErrBufferFull = errors.New("ingest: buffer is full")
)

// Writer определяет, куда физически сохраняются события (Postgres, SQLite).
// WriteBatch возвращает только вставленные события, без отброшенных дублей.
type Writer interface {
	WriteBatch(ctx context.Context, events []domain.UsageEvent) ([]domain.UsageEvent, error)
}

// Sink получает уже сохраненные события.
type Sink interface {
	Append(events []domain.UsageEvent)
}

// Observer: хуки для метрик. Реализуется engine.Metrics.
type Observer interface {
	IngestFlushed(n int, err error)
	IngestDropped(n int)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Batcher struct {
	ch       chan domain.UsageEvent
	repo     Writer // nil для csv-драйвера: события живут только в памяти
	sink     Sink
	observer Observer
	logger   *zap.Logger
	opts     Options

	wg     sync.WaitGroup
	mu     sync.Mutex // защищает closed и отправку в ch от гонки с close
	closed bool
}

func NewBatcher(repo Writer, sink Sink, observer Observer, opts Options, logger *zap.Logger) *Batcher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Batcher{
		ch:       make(chan domain.UsageEvent, opts.BufferSize),
		repo:     repo,
		sink:     sink,
		observer: observer,
		opts:     opts,
		logger:   logger.With(zap.String("mod", "ingest")),
	}
}

func (b *Batcher) Start() {
	b.wg.Add(1)
	go b.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.logger.Info("stopping ingest: closing channel and flushing buffer...")
	close(b.ch)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("ingest stopped gracefully")
}

// Enqueue принимает пакет без блокировки: целиком или никак. Если свободного
// места в буфере меньше, чем событий (backpressure), не принимается ничего
// и возвращается ErrBufferFull, так повтор клиента не дублирует часть пакета.
func (b *Batcher) Enqueue(events ...domain.UsageEvent) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrStopped
	}

	// Под мьютексом других отправителей нет, а воркер только освобождает место
	if free := cap(b.ch) - len(b.ch); free < len(events) {
		b.logger.Error("ingest_buffer_overflow", zap.Int("dropped", len(events)), zap.Int("free", free))
		if b.observer != nil {
			b.observer.IngestDropped(len(events))
		}
		return 0, ErrBufferFull
	}

	for _, ev := range events {
		b.ch <- ev
	}
	return len(events), nil
}

// Buffered: текущая заполненность очереди.
func (b *Batcher) Buffered() int {
	return len(b.ch)
}

func (b *Batcher) worker() {
	defer b.wg.Done()

	batch := make([]domain.UsageEvent, 0, b.opts.BatchSize)
	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Отдельная копия: sink может держать слайс у себя
		out := make([]domain.UsageEvent, len(batch))
		copy(out, batch)
		batch = batch[:0]

		stored := out
		var err error
		if b.repo != nil {
			// Background: на остановке основной контекст уже может быть отменен
			stored, err = b.repo.WriteBatch(context.Background(), out)
		}
		if b.observer != nil {
			b.observer.IngestFlushed(len(stored), err)
		}
		if err != nil {
			b.logger.Error("ingest flush failed", zap.Int("events", len(out)), zap.Error(err))
			return
		}
		if skipped := len(out) - len(stored); skipped > 0 {
			b.logger.Debug("duplicate events skipped", zap.Int("skipped", skipped))
		}
		if b.sink != nil && len(stored) > 0 {
			b.sink.Append(stored)
		}
	}

	for {
		select {
		case ev, ok := <-b.ch:
			if !ok {
				// Канал закрыт в Stop: всё из очереди уже вычитано
				flush()
				b.logger.Info("ingest worker finished")
				return
			}
			batch = append(batch, ev)
			if len(batch) >= b.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
