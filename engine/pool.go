package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	iface "FaceDetServer/interface"
	"FaceDetServer/logger"

	"go.uber.org/zap"
)

// Target is anything that runs a detection: a Backend, or a registered
// engine from Registry.Engine.
type Target interface {
	Detect(img iface.ImageData) (iface.Detection, error)
}

type job struct {
	target Target
	image  iface.ImageData
	result chan jobResult
}

type jobResult struct {
	detection iface.Detection
	err       error
}

// WorkerPool runs detections on a fixed set of goroutines, each pinned to
// an OS thread for the native runtime.
type WorkerPool struct {
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &WorkerPool{jobs: make(chan job, workers)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker(i)
	}
	return p
}

func (p *WorkerPool) runWorker(workerID int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Debug("worker started", zap.Int("worker", workerID))
	for j := range p.jobs {
		j.result <- p.handle(workerID, j)
	}
}

func (p *WorkerPool) handle(workerID int, j job) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("worker panic recovered", zap.Int("worker", workerID), zap.Any("panic", r))
			res = jobResult{err: fmt.Errorf("worker %d panic: %v", workerID, r)}
		}
	}()
	det, err := j.target.Detect(j.image)
	return jobResult{detection: det, err: err}
}

// Submit queues a detection and waits for its result.
func (p *WorkerPool) Submit(ctx context.Context, target Target, img iface.ImageData) (iface.Detection, error) {
	j := job{target: target, image: img, result: make(chan jobResult, 1)}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return iface.Detection{}, ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return iface.Detection{}, ctx.Err()
	}
	select {
	case r := <-j.result:
		return r.detection, r.err
	case <-ctx.Done():
		return iface.Detection{}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to drain.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
