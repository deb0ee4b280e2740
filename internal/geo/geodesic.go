package geo

import (
	"fmt"
	"math"
)

// Unit conversion factors.
const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Coordinates is a point on the body surface in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// String formats the coordinates as hemisphere-suffixed degrees.
func (c Coordinates) String() string {
	ns, ew := "N", "E"
	lat, lon := c.Lat, c.Normalized().Lon
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lon < 0 {
		ew, lon = "W", -lon
	}
	return fmt.Sprintf("%.6f°%s %.6f°%s", lat, ns, lon, ew)
}

// Normalized returns the coordinates with longitude wrapped into [-180, 180).
func (c Coordinates) Normalized() Coordinates {
	c.Lon = NormalizeDeg(c.Lon)
	return c
}

// NormalizeDeg wraps an angle in degrees into [-180, 180).
func NormalizeDeg(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// AngularDistance returns the central angle in radians between two points
// given in degrees.
//
// It uses the Haversine formula in its atan2 form, which stays well defined
// for coincident and antipodal points where the asin form would leave its
// domain through floating-point overshoot.
func AngularDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * deg2rad
	phi2 := lat2 * deg2rad
	dlat := phi2 - phi1
	dlon := (lon2 - lon1) * deg2rad

	a := (1-math.Cos(dlat))/2 + math.Cos(phi1)*math.Cos(phi2)*(1-math.Cos(dlon))/2
	a = clamp(a, 0, 1)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SurfaceDistance returns the great-circle distance between two points on a
// sphere of the given radius. The result has the radius' unit.
func SurfaceDistance(lat1, lon1, lat2, lon2, radius float64) float64 {
	return AngularDistance(lat1, lon1, lat2, lon2) * radius
}

// Bearing returns the initial bearing in radians from point 1 toward point 2.
//
// This is the raw trigonometric primitive: lat1, lat2 and deltaLon are in
// radians. Use BearingDeg for degree coordinates.
func Bearing(lat1, lat2, deltaLon float64) float64 {
	cosLat2 := math.Cos(lat2)
	y := math.Sin(deltaLon) * cosLat2
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*cosLat2*math.Cos(deltaLon)
	return math.Atan2(y, x)
}

// BearingDeg returns the initial bearing in degrees, within [-180, 180],
// from one point toward another.
func BearingDeg(from, to Coordinates) float64 {
	return Bearing(from.Lat*deg2rad, to.Lat*deg2rad, (to.Lon-from.Lon)*deg2rad) * rad2deg
}

// InterpolatedPoint returns the point lying angularDistance radians along the
// great circle from point 1 toward point 2. Coordinates are in degrees.
//
// A typical use is an approach point d radians short of a target:
//
//	total := geo.AngularDistance(lat1, lon1, lat2, lon2)
//	p := geo.InterpolatedPoint(lat1, lon1, lat2, lon2, total-d)
func InterpolatedPoint(lat1, lon1, lat2, lon2, angularDistance float64) Coordinates {
	bearing := Bearing(lat1*deg2rad, lat2*deg2rad, (lon2-lon1)*deg2rad)
	return destination(lat1, lon1, bearing, angularDistance)
}

// Destination returns the point reached by travelling angularDistance radians
// from c along the great circle with the given initial bearing in degrees.
func Destination(c Coordinates, bearingDeg, angularDistance float64) Coordinates {
	return destination(c.Lat, c.Lon, bearingDeg*deg2rad, angularDistance)
}

func destination(lat1, lon1, bearing, angularDistance float64) Coordinates {
	phi1 := lat1 * deg2rad
	sinD := math.Sin(angularDistance)
	cosD := math.Cos(angularDistance)
	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)

	lat := math.Asin(clamp(sinPhi1*cosD+cosPhi1*sinD*math.Cos(bearing), -1, 1))
	dlon := math.Atan2(math.Sin(bearing)*sinD*cosPhi1, cosD-sinPhi1*math.Sin(lat))
	return Coordinates{Lat: lat * rad2deg, Lon: lon1 + dlon*rad2deg}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
