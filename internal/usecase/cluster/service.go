// Package cluster implements cluster registration.
package cluster

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

// Service registers clusters and seals their API secrets at rest.
type Service struct {
	clusters out.ClusterStore
	sealer   out.SecretSealer
	log      zerolog.Logger
	nowFn    func() time.Time
}

// NewService creates a cluster registration service.
func NewService(clusters out.ClusterStore, sealer out.SecretSealer, log zerolog.Logger) *Service {
	return &Service{
		clusters: clusters,
		sealer:   sealer,
		log:      log,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterCluster validates the endpoint, seals the secret and persists the
// cluster. The plaintext secret is never stored or returned.
func (s *Service) RegisterCluster(ctx context.Context, name, apiURL, username, password string) (domain.Cluster, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Cluster{}, fmt.Errorf("%w: cluster name is required", domain.ErrValidation)
	}
	u, err := url.Parse(apiURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return domain.Cluster{}, fmt.Errorf("%w: invalid cluster API URL %q", domain.ErrValidation, apiURL)
	}
	if username == "" || password == "" {
		return domain.Cluster{}, fmt.Errorf("%w: cluster credentials are required", domain.ErrValidation)
	}

	sealed, err := s.sealer.Seal([]byte(password))
	if err != nil {
		return domain.Cluster{}, fmt.Errorf("failed to seal cluster secret: %w", err)
	}

	c := domain.Cluster{
		ID:           uuid.NewString(),
		Name:         name,
		APIURL:       strings.TrimRight(apiURL, "/"),
		Username:     username,
		SealedSecret: sealed,
		CreatedAt:    s.nowFn(),
	}
	if err := s.clusters.CreateCluster(ctx, c); err != nil {
		return domain.Cluster{}, fmt.Errorf("failed to register cluster: %w", err)
	}

	s.log.Info().
		Str("cluster_id", c.ID).
		Str("name", c.Name).
		Msg("Cluster registered")
	return c, nil
}

// ListClusters returns all registered clusters.
func (s *Service) ListClusters(ctx context.Context) ([]domain.Cluster, error) {
	return s.clusters.ListClusters(ctx)
}

// DeleteCluster removes a cluster registration.
func (s *Service) DeleteCluster(ctx context.Context, id string) error {
	return s.clusters.DeleteCluster(ctx, id)
}
