package utils

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownManager runs registered cleanup tasks once a termination signal arrives.
// Tasks run in reverse registration order, like deferred calls.
type ShutdownManager struct {
	cancelFunc    context.CancelFunc
	shutdownTasks []func(context.Context) error
	timeout       time.Duration
	log           zerolog.Logger
	mu            sync.Mutex
	done          chan struct{}
}

func NewShutdownManager(ctx context.Context, timeout time.Duration, log zerolog.Logger) (context.Context, *ShutdownManager) {
	ctx, cancel := context.WithCancel(ctx)
	manager := &ShutdownManager{
		cancelFunc: cancel,
		timeout:    timeout,
		log:        log,
		done:       make(chan struct{}),
	}
	return ctx, manager
}

func (sm *ShutdownManager) Register(task func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownTasks = append(sm.shutdownTasks, task)
}

func (sm *ShutdownManager) StartListening() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		sm.log.Info().Str("signal", sig.String()).Msg("[SHUTDOWN] Received signal")
		sm.Shutdown()
	}()
}

// Shutdown cancels the root context and runs every task under the shutdown timeout.
func (sm *ShutdownManager) Shutdown() {
	sm.cancelFunc()

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for i := len(sm.shutdownTasks) - 1; i >= 0; i-- {
		if err := sm.shutdownTasks[i](ctx); err != nil {
			sm.log.Error().Err(err).Msg("[SHUTDOWN] Error during shutdown")
		}
	}
	sm.shutdownTasks = nil

	sm.log.Info().Msg("[SHUTDOWN] Graceful shutdown complete")
	select {
	case <-sm.done:
	default:
		close(sm.done)
	}
}

// Done is closed after Shutdown has run all tasks.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}
