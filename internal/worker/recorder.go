package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"chatgate-backend/internal/models"
)

type chatLogStore interface {
	Create(ctx context.Context, l *models.ChatLog) error
}

// Recorder persists chat logs in the background so chat streams never wait
// on the database. When the buffer is full new records are dropped.
type Recorder struct {
	store       chatLogStore
	queue       chan *models.ChatLog
	workerCount int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

func NewRecorder(store chatLogStore, workerCount, bufferSize int) *Recorder {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Recorder{
		store:       store,
		queue:       make(chan *models.ChatLog, bufferSize),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (r *Recorder) Start() {
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	log.Printf("Started %d chat log workers", r.workerCount)
}

// Stop drains queued records and waits for the workers to exit.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Record queues entry without blocking.
func (r *Recorder) Record(entry *models.ChatLog) {
	select {
	case <-r.stopChan:
		log.Printf("Chat log recorder stopped, dropping log %s", entry.ID)
		return
	default:
	}

	select {
	case r.queue <- entry:
	default:
		log.Printf("Chat log queue full, dropping log %s", entry.ID)
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.queue:
			r.persist(id, entry)
		case <-r.stopChan:
			for {
				select {
				case entry := <-r.queue:
					r.persist(id, entry)
				default:
					log.Printf("Chat log worker %d shutting down", id)
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(id int, entry *models.ChatLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Create(ctx, entry); err != nil {
		log.Printf("Chat log worker %d: failed to save log %s: %v", id, entry.ID, err)
	}
}
