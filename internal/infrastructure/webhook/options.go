package webhook

import (
	"net/http"
	"time"
)

type Option func(*Sender)

func Timeout(timeout time.Duration) Option {
	return func(s *Sender) {
		s.client.Timeout = timeout
	}
}

func Client(client *http.Client) Option {
	return func(s *Sender) {
		s.client = client
	}
}
