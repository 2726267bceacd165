package query

import (
	"math"
	"sort"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

const (
	// ellipseExpansion stretches the 2-start ellipse's major axis beyond
	// the inter-focal distance. At 1.0 the ellipse degenerates to the
	// segment between the foci and rejects every off-line hub.
	ellipseExpansion = 1.2

	// hullBufferFraction expands the >=3-start convex hull outward from
	// its centroid, absorbing curvature and float error at city scale.
	hullBufferFraction = 0.005

	// coverageFraction is the share of starts the coverage circle must
	// enclose.
	coverageFraction = 0.70

	// ellipseTolerance admits hubs within half a percent of the major
	// axis, so hubs sitting on the boundary are not lost to great-circle
	// rounding.
	ellipseTolerance = 0.005
)

// candidateHubs narrows the full hub set to hubs inside the search region
// spanned by the starts, then intersects with the coverage circle around
// their centroid. Start hubs are always included.
func candidateHubs(starts []graph.Hub, all []graph.Hub) []graph.Hub {
	inRegion := regionPredicate(starts)
	center, radius := coverageCircle(starts)

	startIDs := make(map[string]struct{}, len(starts))
	for _, s := range starts {
		startIDs[s.ID] = struct{}{}
	}

	var out []graph.Hub
	for _, hub := range all {
		if _, isStart := startIDs[hub.ID]; isStart {
			out = append(out, hub)
			continue
		}
		if !inRegion(hub.Lat, hub.Lon) {
			continue
		}
		if graph.Haversine(hub.Lat, hub.Lon, center.lat, center.lon) > radius {
			continue
		}
		out = append(out, hub)
	}
	return out
}

func regionPredicate(starts []graph.Hub) func(lat, lon float64) bool {
	if len(starts) == 2 {
		return ellipsePredicate(starts[0], starts[1])
	}
	hull := convexHull(starts)
	if len(hull) < 3 {
		// Collinear starts: the hull is a segment, use the ellipse
		// spanned by its extreme points.
		return ellipsePredicate(
			graph.Hub{Lat: hull[0].lat, Lon: hull[0].lon},
			graph.Hub{Lat: hull[len(hull)-1].lat, Lon: hull[len(hull)-1].lon},
		)
	}
	buffered := bufferHull(hull, hullBufferFraction)
	return func(lat, lon float64) bool {
		return insideConvexPolygon(buffered, point{lat: lat, lon: lon})
	}
}

// ellipsePredicate reports whether a point lies inside the ellipse with the
// two starts as foci and major axis ellipseExpansion times the inter-focal
// great-circle distance.
func ellipsePredicate(a, b graph.Hub) func(lat, lon float64) bool {
	majorAxis := ellipseExpansion * graph.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
	return func(lat, lon float64) bool {
		sum := graph.Haversine(lat, lon, a.Lat, a.Lon) +
			graph.Haversine(lat, lon, b.Lat, b.Lon)
		return sum <= majorAxis*(1+ellipseTolerance)
	}
}

type point struct {
	lat float64
	lon float64
}

// coverageCircle returns the centroid of the starts and the smallest radius
// enclosing at least coverageFraction of them. With two starts the circle
// shrinks to 70% of the half-distance around the midpoint, biasing the
// search toward the middle ground.
func coverageCircle(starts []graph.Hub) (point, float64) {
	var center point
	for _, s := range starts {
		center.lat += s.Lat
		center.lon += s.Lon
	}
	center.lat /= float64(len(starts))
	center.lon /= float64(len(starts))

	if len(starts) == 2 {
		d := graph.Haversine(starts[0].Lat, starts[0].Lon, starts[1].Lat, starts[1].Lon)
		return center, coverageFraction * d / 2
	}

	dists := make([]float64, len(starts))
	for i, s := range starts {
		dists[i] = graph.Haversine(s.Lat, s.Lon, center.lat, center.lon)
	}
	sort.Float64s(dists)
	idx := int(math.Ceil(coverageFraction*float64(len(starts)))) - 1
	if idx < 0 {
		idx = 0
	}
	return center, dists[idx]
}

// convexHull computes the convex hull of the starts in (lon, lat) space
// using Andrew's monotone chain, returned in counter-clockwise order.
// Duplicate coordinates collapse; fewer than three distinct points yield a
// degenerate hull.
func convexHull(starts []graph.Hub) []point {
	pts := make([]point, 0, len(starts))
	seen := make(map[point]struct{}, len(starts))
	for _, s := range starts {
		p := point{lat: s.Lat, lon: s.Lon}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pts = append(pts, p)
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].lon != pts[j].lon {
			return pts[i].lon < pts[j].lon
		}
		return pts[i].lat < pts[j].lat
	})
	if len(pts) < 3 {
		return pts
	}

	var lower []point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []point
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		return pts
	}
	return hull
}

// cross is the z-component of (b-a) x (c-a) in (lon, lat) coordinates.
func cross(a, b, c point) float64 {
	return (b.lon-a.lon)*(c.lat-a.lat) - (b.lat-a.lat)*(c.lon-a.lon)
}

// bufferHull scales every hull vertex outward from the hull centroid by the
// given fraction.
func bufferHull(hull []point, fraction float64) []point {
	var centroid point
	for _, p := range hull {
		centroid.lat += p.lat
		centroid.lon += p.lon
	}
	centroid.lat /= float64(len(hull))
	centroid.lon /= float64(len(hull))

	out := make([]point, len(hull))
	for i, p := range hull {
		out[i] = point{
			lat: centroid.lat + (p.lat-centroid.lat)*(1+fraction),
			lon: centroid.lon + (p.lon-centroid.lon)*(1+fraction),
		}
	}
	return out
}

// insideConvexPolygon tests a point against a counter-clockwise convex
// polygon; boundary points count as inside.
func insideConvexPolygon(poly []point, p point) bool {
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		if cross(a, b, p) < 0 {
			return false
		}
	}
	return true
}
