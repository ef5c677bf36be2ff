package in

import (
	"context"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// ClusterService defines cluster registration use cases. The API secret is
// sealed before it is persisted and never returned in the clear.
type ClusterService interface {
	RegisterCluster(ctx context.Context, name, apiURL, username, password string) (domain.Cluster, error)
	ListClusters(ctx context.Context) ([]domain.Cluster, error)
	DeleteCluster(ctx context.Context, id string) error
}
