package mapsync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
	"github.com/fouezkebiche/memoire-projet/internal/route"
)

// Network loads line topology from the data service and assembles it.
type Network struct {
	Client    remote.Client
	Entities  TopologyEntities
	Filter    remote.Filter
	Assembler *route.Assembler
	Log       *logrus.Entry
}

// Fetch loads lines, then their line stations, then every station they
// reference. Records that cannot be decoded are logged and skipped.
func (n *Network) Fetch(ctx context.Context) (model.Topology, error) {
	var topo model.Topology

	lineRecs, err := n.Client.FetchEntities(ctx, n.Entities.Lines, model.LineFields, n.Filter)
	if err != nil {
		return topo, fmt.Errorf("failed to fetch lines: %w", err)
	}
	lineIDs := make([]int64, 0, len(lineRecs))
	for _, rec := range lineRecs {
		l, err := model.DecodeLine(rec)
		if err != nil {
			n.reject(err)
			continue
		}
		topo.Lines = append(topo.Lines, l)
		lineIDs = append(lineIDs, l.ID)
	}

	// Unfiltered views also draw lines only referenced by waypoints.
	var lsFilter remote.Filter
	if len(n.Filter) > 0 {
		lsFilter = remote.Where("line_id", remote.OpIn, lineIDs)
	}
	lsRecs, err := n.Client.FetchEntities(ctx, n.Entities.LineStations, model.LineStationFields, lsFilter)
	if err != nil {
		return topo, fmt.Errorf("failed to fetch line stations: %w", err)
	}
	for _, rec := range lsRecs {
		ls, err := model.DecodeLineStation(rec)
		if err != nil {
			n.reject(err)
			continue
		}
		topo.LineStations = append(topo.LineStations, ls)
	}

	ids := referencedStations(topo)
	if len(ids) == 0 {
		return topo, nil
	}
	stationRecs, err := n.Client.FetchEntities(ctx, n.Entities.Stations, model.StationFields, remote.Where("id", remote.OpIn, ids))
	if err != nil {
		return topo, fmt.Errorf("failed to fetch stations: %w", err)
	}
	for _, rec := range stationRecs {
		s, err := model.DecodeStation(rec)
		if err != nil {
			n.reject(err)
			continue
		}
		topo.Stations = append(topo.Stations, s)
	}
	return topo, nil
}

// Load fetches and assembles the network.
func (n *Network) Load(ctx context.Context) (route.Result, error) {
	topo, err := n.Fetch(ctx)
	if err != nil {
		return route.Result{}, err
	}
	res := n.assembler().Assemble(topo.Lines, topo.Stations, topo.LineStations)
	for _, w := range res.Warnings {
		n.Log.WithField("warning", w.String()).Debug("route assembly warning")
	}
	if len(res.Warnings) > 0 {
		n.Log.WithFields(logrus.Fields{
			"warnings": len(res.Warnings),
			"segments": len(res.Segments),
		}).Warn("network assembled with warnings")
	}
	return res, nil
}

func (n *Network) assembler() *route.Assembler {
	if n.Assembler == nil {
		return route.New()
	}
	return n.Assembler
}

func (n *Network) reject(err error) {
	var shape *model.DataShapeError
	if errors.As(err, &shape) {
		n.Log.WithError(err).WithField("entity", shape.Entity).Warn("skipping record")
		return
	}
	n.Log.WithError(err).Warn("skipping record")
}

// referencedStations returns the sorted ids of every station used by a
// waypoint or as a line endpoint.
func referencedStations(topo model.Topology) []int64 {
	seen := make(map[int64]bool)
	add := func(id int64) {
		if id != 0 {
			seen[id] = true
		}
	}
	for _, ls := range topo.LineStations {
		add(ls.Station.ID)
	}
	for _, l := range topo.Lines {
		if l.Departure != nil {
			add(l.Departure.ID)
		}
		if l.Terminus != nil {
			add(l.Terminus.ID)
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
