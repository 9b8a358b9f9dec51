package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskThumbnail  = "attachment:thumbnail"
	TaskOrphanScan = "attachment:orphan-scan"
)

// ThumbnailPayload names the uploaded object to shrink.
type ThumbnailPayload struct {
	LetterNumber int    `json:"letter_number"`
	ObjectName   string `json:"object_name"`
}

// NewThumbnailTask builds the task for one upload. Each object is
// processed at most once while its task is retained.
func NewThumbnailTask(letterNumber int, objectName string) (*asynq.Task, error) {
	payload, err := json.Marshal(ThumbnailPayload{LetterNumber: letterNumber, ObjectName: objectName})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskThumbnail,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.TaskID("thumb:"+objectName),
	), nil
}

func newOrphanScanTask() *asynq.Task {
	return asynq.NewTask(
		TaskOrphanScan,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Hour),
	)
}

// Client enqueues background tasks.
type Client struct {
	c *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{c: asynq.NewClient(opt)}, nil
}

func (c *Client) Close() error {
	return c.c.Close()
}

// EnqueueThumbnail schedules thumbnail generation for an uploaded object.
func (c *Client) EnqueueThumbnail(letterNumber int, objectName string) error {
	task, err := NewThumbnailTask(letterNumber, objectName)
	if err != nil {
		return err
	}
	_, err = c.c.Enqueue(task)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("failed to enqueue %s: %w", TaskThumbnail, err)
	}
	return nil
}
