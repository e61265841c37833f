package store

import (
	"context"

	"github.com/boogy/health-journal/pkg/types"
	"github.com/jackc/pgx/v5"
)

const readingColumns = `id, user_id, glucose_level, measurement_time, measurement_source, notes`

// Readings stores glucose readings.
type Readings struct {
	c *Client
}

func NewReadings(c *Client) *Readings { return &Readings{c: c} }

func scanReading(g *types.GlucoseReading) []any {
	return []any{&g.ID, &g.UserID, &g.GlucoseLevel, &g.MeasurementTime, &g.Source, &g.Notes}
}

func rowToReading(row pgx.CollectableRow) (types.GlucoseReading, error) {
	var g types.GlucoseReading
	err := row.Scan(scanReading(&g)...)
	return g, err
}

func (r *Readings) List(ctx context.Context, userID int64) ([]types.GlucoseReading, error) {
	return queryRows(ctx, r.c, "Readings.List",
		`SELECT `+readingColumns+` FROM glucose_readings WHERE user_id = $1 ORDER BY measurement_time DESC, id DESC`,
		[]any{userID}, rowToReading)
}

func (r *Readings) Get(ctx context.Context, userID, id int64) (*types.GlucoseReading, error) {
	var g types.GlucoseReading
	err := r.c.queryRow(ctx, "Readings.Get",
		`SELECT `+readingColumns+` FROM glucose_readings WHERE user_id = $1 AND id = $2`,
		[]any{userID, id}, scanReading(&g)...)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Readings) Create(ctx context.Context, userID int64, g *types.GlucoseReading) error {
	g.UserID = userID
	return r.c.queryRow(ctx, "Readings.Create",
		`INSERT INTO glucose_readings (user_id, glucose_level, measurement_time, measurement_source, notes)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		[]any{userID, g.GlucoseLevel, g.MeasurementTime, g.Source, g.Notes}, &g.ID)
}

func (r *Readings) Update(ctx context.Context, userID int64, g *types.GlucoseReading) error {
	g.UserID = userID
	return r.c.exec(ctx, "Readings.Update",
		`UPDATE glucose_readings SET glucose_level = $3, measurement_time = $4, measurement_source = $5, notes = $6
		WHERE user_id = $1 AND id = $2`,
		userID, g.ID, g.GlucoseLevel, g.MeasurementTime, g.Source, g.Notes)
}

func (r *Readings) Delete(ctx context.Context, userID, id int64) error {
	return r.c.exec(ctx, "Readings.Delete", `DELETE FROM glucose_readings WHERE user_id = $1 AND id = $2`, userID, id)
}
