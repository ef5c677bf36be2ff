package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/virtwarden/virtwarden/internal/domain"
)

func (s *ClusterStore) CreateCluster(ctx context.Context, c domain.Cluster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clusters (id, name, api_url, username, sealed_secret, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.APIURL, c.Username, c.SealedSecret, unixOrZero(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert cluster: %w", err)
	}
	return nil
}

func (s *ClusterStore) GetCluster(ctx context.Context, id string) (domain.Cluster, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_url, username, sealed_secret, created_at
		FROM clusters WHERE id = ?`, id)
	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cluster{}, domain.ErrClusterNotFound
	}
	return c, err
}

func (s *ClusterStore) ListClusters(ctx context.Context) ([]domain.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_url, username, sealed_secret, created_at
		FROM clusters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	var out []domain.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ClusterStore) DeleteCluster(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	return requireRow(res, domain.ErrClusterNotFound)
}

func scanCluster(row rowScanner) (domain.Cluster, error) {
	var (
		c       domain.Cluster
		created int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.APIURL, &c.Username, &c.SealedSecret, &created)
	if err != nil {
		return domain.Cluster{}, err
	}
	c.CreatedAt = timeFromUnix(created)
	return c, nil
}
