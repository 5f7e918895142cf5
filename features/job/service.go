package job

import (
	"context"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Record dead-letters an exhausted queue message. Called by the worker, so it
// satisfies its FailureRecorder interface.
func (s *Service) Record(ctx context.Context, documentID, topic, reason string, payload []byte) error {
	return s.repo.Save(ctx, NewDeadLetter(documentID, topic, reason, payload))
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes the original payload to its topic and removes the record.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pub.Publish(job.Topic, job.Payload); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
