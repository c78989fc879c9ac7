package app

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler запускает тики пайплайна с фиксированным интервалом.
// Тики никогда не перекрываются: очередной таймер взводится только
// после завершения предыдущего тика, поэтому затянувшийся тик просто
// сдвигает следующий.
type Scheduler struct {
	tick     func(ctx context.Context) error
	interval func() time.Duration
	log      *slog.Logger
}

// NewScheduler создаёт планировщик. interval читается перед каждым
// ожиданием, чтобы горячая перезагрузка конфигурации меняла период
// без перезапуска.
func NewScheduler(tick func(ctx context.Context) error, interval func() time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{tick: tick, interval: interval, log: log}
}

// Run исполняет первый тик сразу, затем по интервалу, до отмены
// контекста. Начатый тик всегда доводится до конца: остановка
// процесса не прерывает статью посередине.
func (s *Scheduler) Run(ctx context.Context) {
	s.runTick(ctx)

	for {
		interval := s.interval()
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopped")
			return
		case <-timer.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	// Тик живёт в контексте без отмены: сигнал остановки прекращает
	// ожидание следующего тика, а не работу текущего.
	tickCtx := context.WithoutCancel(ctx)

	start := time.Now()
	if err := s.tick(tickCtx); err != nil {
		s.log.Error("tick failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	s.log.Info("tick completed", "duration", time.Since(start).Round(time.Millisecond))
}
