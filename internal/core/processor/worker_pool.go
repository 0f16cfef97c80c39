package processor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"photo-transform-go/config"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed wird nach Shutdown für neue Aufträge zurückgegeben
var ErrPoolClosed = errors.New("worker pool is shut down")

// Processor ist die Arbeit, die ein Worker ausführt; *ImageProcessor erfüllt ihn
type Processor interface {
	Process(ctx context.Context, req Request) (*Outcome, error)
}

// WorkerPool begrenzt die Anzahl gleichzeitig laufender Pipelines
type WorkerPool struct {
	processor       Processor
	jobs            chan *processJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
	stopped         chan struct{} // geschlossen, sobald alle Worker beendet sind
}

type processJob struct {
	ctx      context.Context
	req      Request
	resultCh chan *processResult
}

type processResult struct {
	outcome *Outcome
	err     error
}

// PoolStats ist eine Momentaufnahme der Auslastung
type PoolStats struct {
	Workers       int `json:"workers"`
	ActiveJobs    int `json:"active_jobs"`
	QueuedJobs    int `json:"queued_jobs"`
	QueueCapacity int `json:"queue_capacity"`
}

// NewWorkerPool erstellt und startet den Pool. Ohne Vorgabe werden 75% der
// CPUs verwendet, mindestens 2.
func NewWorkerPool(processor Processor, cfg config.WorkersConfig) *WorkerPool {
	workerCount := cfg.Count
	if workerCount <= 0 {
		workerCount = max(2, (runtime.NumCPU()*3)/4)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workerCount * 2
	}

	log.Infof("Initializing transformation worker pool with %d workers (queue %d)", workerCount, queueSize)

	pool := &WorkerPool{
		processor:   processor,
		jobs:        make(chan *processJob, queueSize),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	pool.startWorkers()
	go func() {
		pool.wg.Wait()
		close(pool.stopped)
	}()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				default:
				}

				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, job *processJob) {
	// Auftraggeber hat bereits aufgegeben
	if err := job.ctx.Err(); err != nil {
		job.resultCh <- &processResult{err: err}
		return
	}

	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d processing style '%s' (active jobs: %d)", workerID, job.req.StyleID, jobCount)
	startTime := time.Now()

	outcome, err := p.processor.Process(job.ctx, job.req)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	// resultCh ist gepuffert, der Versand blockiert nie
	job.resultCh <- &processResult{outcome: outcome, err: err}
	log.Debugf("Worker %d finished job in %v", workerID, time.Since(startTime))
}

// Submit reiht einen Auftrag ein und wartet auf sein Ergebnis. Ein bereits
// laufender Auftrag wird auch bei Shutdown zu Ende gemeldet, nur nie gestartete
// Aufträge enden mit ErrPoolClosed.
func (p *WorkerPool) Submit(ctx context.Context, req Request) (*Outcome, error) {
	job := &processJob{
		ctx:      ctx,
		req:      req,
		resultCh: make(chan *processResult, 1),
	}

	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-job.resultCh:
		return result.outcome, result.err
	case <-p.stopped:
		// Der Worker sendet vor seinem Ende, ein Ergebnis liegt dann schon bereit
		select {
		case result := <-job.resultCh:
			return result.outcome, result.err
		default:
			return nil, ErrPoolClosed
		}
	}
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// Stats liefert die aktuelle Auslastung
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workerCount,
		ActiveJobs:    p.ActiveJobCount(),
		QueuedJobs:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
	}
}

// Shutdown hält die Worker an und wartet auf laufende Aufträge. Wartende
// Aufträge werden nicht mehr gestartet.
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	<-p.stopped
}
