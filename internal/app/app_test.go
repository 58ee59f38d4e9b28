package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/config"
)

func TestNewRejectsInvalidConfigBeforeDialingStore(t *testing.T) {
	cfg := config.Load()
	cfg.StoreDSN = ""

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected an *apperr.Error, got %T", err)
	require.Equal(t, apperr.KindConfiguration, appErr.Kind)
}

func TestErrStoreUnreachableSurvivesApperrWrapping(t *testing.T) {
	wrapped := apperr.Configuration("store unreachable at startup", fmt.Errorf("%w: %v", ErrStoreUnreachable, errors.New("dial tcp: connection refused")))

	require.True(t, errors.Is(wrapped, ErrStoreUnreachable),
		"expected errors.Is to find ErrStoreUnreachable through the apperr/fmt wrapping chain")

	appErr, ok := apperr.As(wrapped)
	require.True(t, ok, "expected wrapped error to unwrap to an *apperr.Error")
	require.Equal(t, http.StatusInternalServerError, appErr.Status())
}
