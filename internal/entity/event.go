package entity

import (
	"encoding/json"
	"time"
)

type DetectedObject struct {
	TrackID int       `json:"trackId"`
	Label   string    `json:"label"`
	Score   float64   `json:"score"`
	BBox    []float64 `json:"bbox,omitempty"`
}

// Event - неизменяемая запись о детекции. id назначается при вставке,
// порядок id = порядок поступления.
type Event struct {
	ID         int64   `json:"id"`
	ProducerID *string `json:"producer_id,omitempty"` // id от продюсера, ключ дедупликации

	StreamID string `json:"stream_id"`
	AppID    string `json:"app_id"`

	Kind    string  `json:"kind"` // категория детекции, приходит от продюсера
	Caption *string `json:"caption,omitempty"`
	Desc    *string `json:"desc,omitempty"`

	Objects     json.RawMessage `json:"objects,omitempty"`
	SnapshotKey *string         `json:"snapshot_key,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// EnrichmentRef - легковесная ссылка на детекцию, по которой Detector
// отдает полные данные.
type EnrichmentRef struct {
	StreamID   string
	AppID      string
	Token      string
	OccurredAt time.Time
}

// Enrichment - данные обогащения от Detector. Все поля опциональны:
// ингест не зависит от успеха обогащения.
type Enrichment struct {
	Objects  json.RawMessage
	Caption  *string
	Desc     *string
	Snapshot []byte // JPEG
}
