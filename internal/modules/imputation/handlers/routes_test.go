package handlers

import (
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/climate-finance/engine/internal/modules/imputation"
)

func TestRegisterRoutes(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(imputation.NewCalculator(nil, nil, nil, log), &memoryStore{}, log)

	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	})
}
