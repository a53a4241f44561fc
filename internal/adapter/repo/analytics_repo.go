package repo

import (
	"context"
	"fmt"

	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// AnalyticsRepo records API request events for the usage dashboard.
type AnalyticsRepo struct {
	sql infra.SQLExecutor
}

func NewAnalyticsRepo(sql infra.SQLExecutor) *AnalyticsRepo {
	return &AnalyticsRepo{sql: sql}
}

// Record stores one request event. country may be empty when GeoIP is not
// configured.
func (r *AnalyticsRepo) Record(ctx context.Context, method, path, country string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertRequestEvent, method, path, country); err != nil {
		return fmt.Errorf("repo: insert request event: %w", err)
	}
	return nil
}

// CountryCount is one row of the 24h request breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Total   int64  `json:"total"`
}

// Countries24h returns request counts by origin country over the last day.
func (r *AnalyticsRepo) Countries24h(ctx context.Context) ([]CountryCount, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRequestCountries24h)
	if err != nil {
		return nil, fmt.Errorf("repo: select request countries: %w", err)
	}
	defer rows.Close()

	var out []CountryCount
	for rows.Next() {
		var c CountryCount
		if err := rows.Scan(&c.Country, &c.Total); err != nil {
			return nil, fmt.Errorf("repo: scan country row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
