package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"pdfqa/src/fsutil"
)

type JobService struct {
	publisher   message.Publisher
	repo        JobRepository
	logger      watermill.LoggerAdapter
	archiveTask *ArchiveTask
	files       fsutil.FileStore
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// NewJobService builds a service that can enqueue jobs. archiver may be nil
// on the publishing side.
func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	archiver *ArchiveTask,
) *JobService {
	return &JobService{
		publisher:   publisher,
		repo:        repo,
		logger:      logger,
		archiveTask: archiver,
		files:       fsutil.NewLocalFileStore(),
	}
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msgPayload, err := json.Marshal(JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	s.logger.Debug("job enqueued", watermill.LogFields{
		"job_id":    job.ID,
		"task_type": taskType,
	})
	return job, nil
}

// Archive enqueues an archive job for an indexed upload. The file's checksum
// goes with the job so a later upload under the same name is not archived in
// its place.
func (s *JobService) Archive(ctx context.Context, path, filename string) error {
	sum, err := fsutil.Checksum(s.files, path)
	if err != nil {
		return fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	payload, err := json.Marshal(ArchivePayload{Path: path, Filename: filename, SHA256: sum})
	if err != nil {
		return fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	_, err = s.EnqueueJob(ctx, TaskTypeArchivePDF, payload)
	return err
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %d", jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	if err := s.processJob(ctx, job); err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

// processJob handles different types of jobs
func (s *JobService) processJob(ctx context.Context, job *Job) error {
	switch job.TaskType {
	case TaskTypeArchivePDF:
		if s.archiveTask == nil {
			return errors.New("archive task is not configured")
		}
		key, err := s.archiveTask.HandleArchiveTask(ctx, job.Payload)
		if err != nil {
			return err
		}
		s.logger.Info("pdf archived", watermill.LogFields{
			"job_id": job.ID,
			"object": key,
		})
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", job.TaskType)
	}
}
