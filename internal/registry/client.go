package registry

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

// UnitRegistry looks units up in the external asset registry. The core
// has no lifecycle authority over units.
type UnitRegistry interface {
	GetUnit(ctx context.Context, unitID string) (*domain.Unit, error)
}

// Client is an HTTP client for the asset registry.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs the registry client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetUnit fetches a unit by identifier.
func (c *Client) GetUnit(ctx context.Context, unitID string) (*domain.Unit, error) {
	url := fmt.Sprintf("%s/units/%s", c.baseURL, unitID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NewNotFound("unit", map[string]any{"unit_id": unitID})
	default:
		c.logger.Warn("registry lookup failed", zap.String("unit_id", unitID), zap.Int("status", resp.StatusCode))
		return nil, apperrors.NewInternalError(fmt.Errorf("registry returned status %d", resp.StatusCode))
	}

	var unit domain.Unit
	if err := json.NewDecoder(resp.Body).Decode(&unit); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &unit, nil
}
