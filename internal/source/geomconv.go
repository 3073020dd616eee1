package source

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

// shapeToGeom converts a shapefile shape to a go-geom geometry with SRID 4326.
// Single-part polygons stay Polygon and multi-part ones become MultiPolygon,
// so one table's geometry column may mix both subtypes. Returns nil for
// unsupported or empty shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)

	case *shp.PolyLine:
		return polyLineToGeom(s)

	case *shp.Polygon:
		return polygonToGeom(s)

	default:
		return nil
	}
}

// partRange returns the [start, end) point range of part i.
func partRange(parts []int32, numPoints int, i int32) (int32, int32) {
	start := parts[i]
	if int(i+1) < len(parts) {
		return start, parts[i+1]
	}
	return start, int32(numPoints)
}

func flatPart(points []shp.Point, start, end int32) []float64 {
	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}

func polyLineToGeom(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	if pl.NumParts == 1 {
		return geom.NewLineStringFlat(geom.XY, flatPart(pl.Points, 0, int32(len(pl.Points)))).SetSRID(4326)
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i := int32(0); i < pl.NumParts; i++ {
		start, end := partRange(pl.Parts, len(pl.Points), i)
		ls := geom.NewLineStringFlat(geom.XY, flatPart(pl.Points, start, end))
		if err := mls.Push(ls); err != nil {
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	if p.NumParts == 1 {
		ring := geom.NewLinearRingFlat(geom.XY, flatPart(p.Points, 0, int32(len(p.Points))))
		poly := geom.NewPolygon(geom.XY).SetSRID(4326)
		if err := poly.Push(ring); err != nil {
			return nil
		}
		return poly
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start, end := partRange(p.Parts, len(p.Points), i)
		ring := geom.NewLinearRingFlat(geom.XY, flatPart(p.Points, start, end))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
