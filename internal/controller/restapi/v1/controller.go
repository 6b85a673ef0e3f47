package v1

import (
	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
)

type V1 struct {
	ev     usecase.EventUseCase
	logger logger.Interface
}
