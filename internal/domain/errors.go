package domain

import "errors"

var (
	// ErrInvalidMethodology is returned for unknown methodology names or bad coefficients
	ErrInvalidMethodology = errors.New("invalid methodology")
	// ErrMissingMarkerData means a row has neither markers nor climate components
	ErrMissingMarkerData = errors.New("missing marker data")
	// ErrUnresolvedChannel means a channel name matched no catalogue entry
	ErrUnresolvedChannel = errors.New("unresolved channel")
	// ErrProviderNotClassified means a provider is in neither preference list
	ErrProviderNotClassified = errors.New("provider not classified")
	ErrInvalidSourceView     = errors.New("invalid source view")
	ErrInvalidFlowType       = errors.New("invalid flow type")
)
