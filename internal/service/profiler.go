package service

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
)

var errProfilerIdle = errors.New("profiler not running")

// profiler writes one CPU profile at a time.
type profiler struct {
	mu   sync.Mutex
	file *os.File
}

func (p *profiler) start(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return fmt.Errorf("profiler already writing %s", p.file.Name())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	p.file = f
	return nil
}

func (p *profiler) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return errProfilerIdle
	}
	pprof.StopCPUProfile()
	err := p.file.Close()
	p.file = nil
	return err
}
