package database

import (
	"context"
	"fmt"

	"github.com/NIU1599156/CameraManager/internal/models"
)

// Load returns every camera ordered by id.
func (d *Database) Load(ctx context.Context) ([]models.Camera, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT id, name, address
		FROM cameras
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cameras: %w", err)
	}
	defer rows.Close()

	cameras := []models.Camera{}
	for rows.Next() {
		var c models.Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Address); err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}

	return cameras, rows.Err()
}

// Save replaces the whole table with cameras in one transaction.
func (d *Database) Save(ctx context.Context, cameras []models.Camera) error {
	return d.InTx(ctx, func(ctx context.Context) error {
		q := d.querier(ctx)

		if _, err := q.ExecContext(ctx, `DELETE FROM cameras`); err != nil {
			return fmt.Errorf("failed to clear cameras: %w", err)
		}

		for _, c := range cameras {
			_, err := q.ExecContext(ctx,
				`INSERT INTO cameras (id, name, address, updated_at) VALUES ($1, $2, $3, NOW())`,
				c.ID,
				c.Name,
				c.Address,
			)
			if err != nil {
				return fmt.Errorf("failed to save camera %d: %w", c.ID, err)
			}
		}

		d.logger.Debug().Int("cameras", len(cameras)).Msg("cameras saved")
		return nil
	})
}
