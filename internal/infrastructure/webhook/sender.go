package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	_defaultTimeout = 10 * time.Second

	_maxDrainBytes = 4 << 10
)

// Sender выполняет один POST на приемник. Один вызов - одна попытка,
// повторы планирует машина состояний задач.
type Sender struct {
	client *http.Client
}

func New(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{
			Timeout: _defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Sender) Send(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("Sender - Send - http.NewRequestWithContext: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Sender - Send - s.client.Do: %w", err)
	}
	defer resp.Body.Close()

	// дочитываем тело, чтобы соединение вернулось в пул
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, _maxDrainBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("Sender - Send - unexpected status: %s", resp.Status)
	}

	return nil
}
