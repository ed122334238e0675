package supply

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"go.uber.org/zap"
)

type Updater interface {
	Update(ctx context.Context) error
}

// Poller drives Update cyclically. After a communication failure it waits
// retryDelay before the next attempt; a fatal error stops it.
type Poller struct {
	updater    Updater
	interval   time.Duration
	retryDelay time.Duration
	timeout    time.Duration
	logger     *zap.Logger

	// OnFatal is called once from the poll goroutine when polling stops on
	// a fatal error.
	OnFatal func(error)

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	lastErr   error
	lastOK    time.Time
	holdUntil time.Time
	fatal     bool
}

func NewPoller(updater Updater, interval, retryDelay time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		updater:    updater,
		interval:   interval,
		retryDelay: retryDelay,
		timeout:    10 * interval,
		logger:     logger,
	}
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.fatal {
		return errors.New("poller stopped after fatal error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.stopChan = make(chan struct{})
	p.running = true
	p.wg.Add(1)

	go p.pollLoop(ctx)

	p.logger.Info("Poller started",
		zap.Duration("interval", p.interval),
		zap.Duration("retry_delay", p.retryDelay))

	return nil
}

// Stop stoppt das Polling und bricht einen laufenden Zyklus ab
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			if !p.poll(ctx) {
				return
			}
		}
	}
}

// poll runs one cycle and reports whether polling continues.
func (p *Poller) poll(ctx context.Context) bool {
	p.mu.Lock()
	hold := time.Now().Before(p.holdUntil)
	p.mu.Unlock()
	if hold {
		return true
	}

	cycleCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.updater.Update(cycleCtx)

	p.mu.Lock()
	p.lastErr = err
	switch {
	case err == nil:
		p.lastOK = time.Now()
	case ctx.Err() != nil:
		// Stop() läuft
	case errors.Is(err, mux.ErrFatal):
		p.fatal = true
	case errors.Is(err, mux.ErrCommunication):
		p.holdUntil = time.Now().Add(p.retryDelay)
	}
	fatal := p.fatal
	p.mu.Unlock()

	switch {
	case err == nil, ctx.Err() != nil:
	case fatal:
		p.logger.Error("Poll failed fatally, polling stopped", zap.Error(err))
		p.mu.Lock()
		p.running = false
		p.cancel()
		p.mu.Unlock()
		if p.OnFatal != nil {
			p.OnFatal(err)
		}
		return false
	case errors.Is(err, mux.ErrCommunication):
		p.logger.Warn("Communication failed, holding off",
			zap.Duration("retry_delay", p.retryDelay),
			zap.Error(err))
	default:
		p.logger.Warn("Poll failed", zap.Error(err))
	}
	return true
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller) LastSuccess() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOK
}

// Healthy reports whether the poller runs and its last cycle succeeded.
func (p *Poller) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && !p.fatal && p.lastErr == nil && !p.lastOK.IsZero()
}
