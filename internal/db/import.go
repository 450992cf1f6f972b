package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/model"
)

// ImportStats counts rows written by ImportTopology.
type ImportStats struct {
	Stations     int
	Lines        int
	LineStations int
}

// ImportTopology upserts stations, lines and line stations in one transaction.
func (db *DB) ImportTopology(ctx context.Context, topo model.Topology) (ImportStats, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var stats ImportStats

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stationStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO infrastructure_station (id, name_en, name_ar, name_fr, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name_en = excluded.name_en,
			name_ar = excluded.name_ar,
			name_fr = excluded.name_fr,
			latitude = excluded.latitude,
			longitude = excluded.longitude`))
	if err != nil {
		return stats, fmt.Errorf("failed to prepare station statement: %w", err)
	}
	defer stationStmt.Close()

	for _, s := range topo.Stations {
		if _, err := stationStmt.ExecContext(ctx, s.ID, nullString(s.Names.En), nullString(s.Names.Ar),
			nullString(s.Names.Fr), s.Lat, s.Lng); err != nil {
			return stats, fmt.Errorf("failed to upsert station %d: %w", s.ID, err)
		}
		stats.Stations++
	}

	lineStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO infrastructure_line (id, code, color, departure_station_id, terminus_station_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			color = excluded.color,
			departure_station_id = excluded.departure_station_id,
			terminus_station_id = excluded.terminus_station_id`))
	if err != nil {
		return stats, fmt.Errorf("failed to prepare line statement: %w", err)
	}
	defer lineStmt.Close()

	for _, l := range topo.Lines {
		if _, err := lineStmt.ExecContext(ctx, l.ID, l.Code, nullString(l.Color),
			refID(l.Departure), refID(l.Terminus)); err != nil {
			return stats, fmt.Errorf("failed to upsert line %d: %w", l.ID, err)
		}
		stats.Lines++
	}

	lsStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO infrastructure_line_station (id, line_id, station_id, "order", direction, lat, lng, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			line_id = excluded.line_id,
			station_id = excluded.station_id,
			"order" = excluded."order",
			direction = excluded.direction,
			lat = excluded.lat,
			lng = excluded.lng,
			external_id = excluded.external_id`))
	if err != nil {
		return stats, fmt.Errorf("failed to prepare line station statement: %w", err)
	}
	defer lsStmt.Close()

	for _, ls := range topo.LineStations {
		station := &ls.Station
		if ls.Station.ID == 0 {
			station = nil
		}
		if _, err := lsStmt.ExecContext(ctx, ls.ID, ls.Line.ID, refID(station), ls.Order,
			string(ls.Direction), nullFloat(ls.Lat), nullFloat(ls.Lng), nullInt(ls.ExternalID)); err != nil {
			return stats, fmt.Errorf("failed to upsert line station %d: %w", ls.ID, err)
		}
		stats.LineStations++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit topology: %w", err)
	}

	db.log.WithFields(logrus.Fields{
		"stations":      stats.Stations,
		"lines":         stats.Lines,
		"line_stations": stats.LineStations,
	}).Info("topology imported")

	return stats, nil
}

func refID(ref *model.Reference) any {
	if ref == nil {
		return nil
	}
	return ref.ID
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
