// Package runs stores reconciled and imputed datasets so they can be fetched
// after the request that produced them.
package runs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/climate-finance/engine/internal/domain"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Kind identifies the operation that produced a run
type Kind string

const (
	KindReconcile  Kind = "reconcile"
	KindImputation Kind = "imputation"
)

// Run is a stored dataset with the warnings raised while producing it
type Run struct {
	ID          string                `json:"id"`
	Kind        Kind                  `json:"kind"`
	View        string                `json:"view,omitempty"`
	Methodology string                `json:"methodology"`
	Parameters  json.RawMessage       `json:"parameters,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	Records     []domain.OutputRecord `json:"records"`
	Warnings    domain.Warnings       `json:"warnings"`
}

// Summary describes a run without its records
type Summary struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	View        string    `json:"view,omitempty"`
	Methodology string    `json:"methodology"`
	Records     int       `json:"records"`
	Warnings    int       `json:"warnings"`
	CreatedAt   time.Time `json:"created_at"`
}
