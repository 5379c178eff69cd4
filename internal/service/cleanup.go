package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bilirelay/internal/core/domain"
	"bilirelay/internal/core/ports"
)

// TaskID identifies a scheduled cleanup.
type TaskID string

type cleanupTask struct {
	id    TaskID
	files []string
	timer *time.Timer
}

// Cleaner removes transient artifacts after a fixed delay. Scheduled tasks
// are not tied to any request context and run even if delivery failed.
type Cleaner struct {
	storage ports.Storage
	delay   time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	tasks map[TaskID]*cleanupTask
	wg    sync.WaitGroup
}

func NewCleaner(storage ports.Storage, delay time.Duration, logger zerolog.Logger) *Cleaner {
	return &Cleaner{
		storage: storage,
		delay:   delay,
		logger:  logger.With().Str("component", "cleaner").Logger(),
		tasks:   make(map[TaskID]*cleanupTask),
	}
}

// Schedule queues removal of the artifact's files after the configured delay.
func (c *Cleaner) Schedule(art *domain.DownloadArtifact) TaskID {
	task := &cleanupTask{
		id:    TaskID(uuid.New().String()),
		files: artifactFiles(art),
	}

	c.mu.Lock()
	c.tasks[task.id] = task
	c.wg.Add(1)
	task.timer = time.AfterFunc(c.delay, func() { c.fire(task.id) })
	c.mu.Unlock()

	c.logger.Debug().
		Str("task_id", string(task.id)).
		Str("video_id", art.VideoID).
		Dur("delay", c.delay).
		Msg("Cleanup scheduled")

	return task.id
}

// Cancel stops a pending task. It returns false if the task already ran or
// does not exist.
func (c *Cleaner) Cancel(id TaskID) bool {
	c.mu.Lock()
	task, ok := c.tasks[id]
	if ok && task.timer.Stop() {
		delete(c.tasks, id)
		c.mu.Unlock()
		c.wg.Done()
		return true
	}
	c.mu.Unlock()
	return false
}

// Pending reports whether the task is still waiting to run.
func (c *Cleaner) Pending(id TaskID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[id]
	return ok
}

// Flush runs every pending task now and waits for all tasks to finish.
func (c *Cleaner) Flush() {
	c.mu.Lock()
	var due []TaskID
	for id, task := range c.tasks {
		if task.timer.Stop() {
			due = append(due, id)
		}
	}
	c.mu.Unlock()

	for _, id := range due {
		c.fire(id)
	}
	c.Wait()
}

// Wait blocks until no task is pending or running.
func (c *Cleaner) Wait() {
	c.wg.Wait()
}

func (c *Cleaner) fire(id TaskID) {
	defer c.wg.Done()

	c.mu.Lock()
	task, ok := c.tasks[id]
	delete(c.tasks, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	log := c.logger.With().Str("task_id", string(id)).Logger()
	for _, path := range task.files {
		if err := c.storage.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Cannot remove file")
			continue
		}
		log.Debug().Str("path", path).Msg("Removed")
	}
}

func artifactFiles(art *domain.DownloadArtifact) []string {
	files := []string{art.VideoPath}
	if art.ThumbnailPath != "" {
		files = append(files, art.ThumbnailPath)
	}
	if art.ExternalThumbnailPath != "" {
		files = append(files, art.ExternalThumbnailPath)
	}
	return files
}
