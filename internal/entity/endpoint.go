package entity

import "github.com/google/uuid"

// Endpoint - зарегистрированный webhook. Таблица принадлежит
// конфигурационному сервису, здесь только чтение.
type Endpoint struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Kinds   []string  `json:"kinds"`   // пустой список = любые kind
	Streams []string  `json:"streams"` // пустой список = любые стримы
	Enabled bool      `json:"enabled"`
}

func (e *Endpoint) Matches(kind, streamID string) bool {
	return matchesAny(e.Kinds, kind) && matchesAny(e.Streams, streamID)
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}

	for _, v := range allowed {
		if v == value {
			return true
		}
	}

	return false
}
