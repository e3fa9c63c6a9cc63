package persist

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/omaremad10/nivuus-agent/internal/checkpoint"
)

// HandleSignals flushes and exits with status 0 on SIGINT or SIGTERM.
// In-flight work is abandoned. The returned function stops watching.
func (m *Manager) HandleSignals(exit func(code int)) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go m.watchSignals(ch, done, exit)
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func (m *Manager) watchSignals(ch <-chan os.Signal, done <-chan struct{}, exit func(int)) {
	select {
	case sig := <-ch:
		m.logger.Warn("signal received, saving state", "signal", sig.String())
		m.Shutdown(checkpoint.TriggerSignal)
		exit(0)
	case <-done:
	}
}
