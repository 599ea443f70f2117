package bmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/domain"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// ComponentReader obtains a live inventory read-out from a unit's own
// management interface. The read is untrusted: it can be empty, slow or
// malformed, and every failure mode maps to ExternalReadFailure so the
// caller never writes partial state.
type ComponentReader interface {
	ReadComponents(ctx context.Context, address string) (*domain.InventorySnapshot, error)
}

// HTTPReader reads the component inventory over the management
// controller's HTTP endpoint.
type HTTPReader struct {
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPReader constructs the reader. The timeout bounds the single
// blocking call the caller sees.
func NewHTTPReader(timeout time.Duration, logger *zap.Logger) *HTTPReader {
	return &HTTPReader{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type readoutPayload struct {
	Components []domain.SnapshotComponent `json:"components"`
}

// ReadComponents performs the live read-out.
func (r *HTTPReader) ReadComponents(ctx context.Context, address string) (*domain.InventorySnapshot, error) {
	url := fmt.Sprintf("http://%s/mgmt/v1/inventory", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewExternalReadFailure(address, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		r.logger.Warn("component read-out failed", zap.String("address", address), zap.Error(err))
		return nil, apperrors.NewExternalReadFailure(address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalReadFailure(address, fmt.Errorf("management interface returned status %d", resp.StatusCode))
	}

	var payload readoutPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewExternalReadFailure(address, err)
	}

	for _, comp := range payload.Components {
		if comp.Serial == "" {
			return nil, apperrors.NewExternalReadFailure(address, fmt.Errorf("read-out contains component without serial"))
		}
	}

	return &domain.InventorySnapshot{
		Address:    address,
		TakenAt:    time.Now(),
		Components: payload.Components,
	}, nil
}
