package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

const _defaultTimeout = 3 * time.Second

type enrichRequest struct {
	StreamID  string `json:"stream_id"`
	AppID     string `json:"app_id"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"` // ns
}

type enrichResponse struct {
	Objects  json.RawMessage `json:"objects,omitempty"`
	Caption  *string         `json:"caption,omitempty"`
	Desc     *string         `json:"desc,omitempty"`
	Snapshot string          `json:"snapshot,omitempty"` // base64 JPEG
}

// Client ходит в инференс-ядро за полными данными детекции по токену.
// Один вызов - одна попытка, таймаут жесткий: обогащение не должно
// тормозить ингест.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: _defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Enrich(ctx context.Context, ref entity.EnrichmentRef) (*entity.Enrichment, error) {
	body, err := json.Marshal(enrichRequest{
		StreamID:  ref.StreamID,
		AppID:     ref.AppID,
		Token:     ref.Token,
		Timestamp: ref.OccurredAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("Client - Enrich - json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detections/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Client - Enrich - http.NewRequestWithContext: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Client - Enrich - c.client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		return nil, fmt.Errorf("Client - Enrich - unexpected status: %s", resp.Status)
	}

	var er enrichResponse

	err = json.NewDecoder(resp.Body).Decode(&er)
	if err != nil {
		return nil, fmt.Errorf("Client - Enrich - json.Decode: %w", err)
	}

	enrichment := &entity.Enrichment{
		Objects: er.Objects,
		Caption: er.Caption,
		Desc:    er.Desc,
	}

	if er.Snapshot != "" {
		snapshot, err := base64.StdEncoding.DecodeString(er.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("Client - Enrich - base64.DecodeString: %w", err)
		}

		enrichment.Snapshot = snapshot
	}

	return enrichment, nil
}
