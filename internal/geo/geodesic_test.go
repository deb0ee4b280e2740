package geo

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestAngularDistance_SamePoint(t *testing.T) {
	points := []Coordinates{
		{Lat: 0, Lon: 0},
		{Lat: 45.5, Lon: -120.25},
		{Lat: 90, Lon: 0},
		{Lat: -89.999, Lon: 179.9},
	}
	for _, p := range points {
		if got := AngularDistance(p.Lat, p.Lon, p.Lat, p.Lon); got != 0 {
			t.Errorf("AngularDistance(%v, %v) = %v, want 0", p, p, got)
		}
	}
}

func TestAngularDistance_Symmetry(t *testing.T) {
	pairs := [][2]Coordinates{
		{{Lat: 0, Lon: 0}, {Lat: 10, Lon: 20}},
		{{Lat: -33.9, Lon: 18.4}, {Lat: 51.5, Lon: -0.1}},
		{{Lat: 89, Lon: 0}, {Lat: -89, Lon: 180}},
	}
	for _, p := range pairs {
		a := AngularDistance(p[0].Lat, p[0].Lon, p[1].Lat, p[1].Lon)
		b := AngularDistance(p[1].Lat, p[1].Lon, p[0].Lat, p[0].Lon)
		if math.Abs(a-b) > tolerance {
			t.Errorf("AngularDistance not symmetric for %v: %v vs %v", p, a, b)
		}
	}
}

func TestAngularDistance_QuarterEquator(t *testing.T) {
	got := AngularDistance(0, 0, 0, 90)
	if math.Abs(got-math.Pi/2) > tolerance {
		t.Errorf("AngularDistance(0,0,0,90) = %v, want %v", got, math.Pi/2)
	}
}

func TestAngularDistance_Antipodal(t *testing.T) {
	got := AngularDistance(0, 0, 0, 180)
	if math.IsNaN(got) {
		t.Fatal("AngularDistance returned NaN for antipodal points")
	}
	if math.Abs(got-math.Pi) > 1e-6 {
		t.Errorf("AngularDistance(0,0,0,180) = %v, want %v", got, math.Pi)
	}
}

func TestSurfaceDistance(t *testing.T) {
	const radius = 600000.0
	got := SurfaceDistance(0, 0, 0, 90, radius)
	want := math.Pi / 2 * radius
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("SurfaceDistance = %v, want %v", got, want)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		from Coordinates
		to   Coordinates
		want float64
	}{
		{name: "due east", from: Coordinates{0, 0}, to: Coordinates{0, 10}, want: 90},
		{name: "due west", from: Coordinates{0, 90}, to: Coordinates{0, 0}, want: -90},
		{name: "due north", from: Coordinates{0, 0}, to: Coordinates{10, 0}, want: 0},
		{name: "due south", from: Coordinates{10, 0}, to: Coordinates{0, 0}, want: 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDeg(tt.from, tt.to)
			diff := math.Abs(NormalizeDeg(got - tt.want))
			if diff > 1e-6 {
				t.Errorf("BearingDeg(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBearing_RadiansPrimitive(t *testing.T) {
	got := Bearing(0, 0, -math.Pi/2)
	if math.Abs(got+math.Pi/2) > tolerance {
		t.Errorf("Bearing(0, 0, -pi/2) = %v, want %v", got, -math.Pi/2)
	}
}

func TestInterpolatedPoint(t *testing.T) {
	t.Run("zero distance returns start", func(t *testing.T) {
		p := InterpolatedPoint(10, 20, 30, 40, 0)
		if math.Abs(p.Lat-10) > 1e-9 || math.Abs(p.Lon-20) > 1e-9 {
			t.Errorf("InterpolatedPoint at 0 = %v, want (10, 20)", p)
		}
	})

	t.Run("halfway along equator", func(t *testing.T) {
		p := InterpolatedPoint(0, 0, 0, 90, math.Pi/4)
		if math.Abs(p.Lat) > 1e-9 || math.Abs(p.Lon-45) > 1e-9 {
			t.Errorf("InterpolatedPoint halfway = %v, want (0, 45)", p)
		}
	})

	t.Run("full distance reaches target", func(t *testing.T) {
		total := AngularDistance(10, 20, 30, 40)
		p := InterpolatedPoint(10, 20, 30, 40, total)
		if d := AngularDistance(p.Lat, p.Lon, 30, 40); d > 1e-9 {
			t.Errorf("InterpolatedPoint at total distance is %v rad from target", d)
		}
	})

	t.Run("approach point short of target", func(t *testing.T) {
		total := AngularDistance(0, 0, 0, 90)
		short := 0.1
		p := InterpolatedPoint(0, 0, 0, 90, total-short)
		if d := AngularDistance(p.Lat, p.Lon, 0, 90); math.Abs(d-short) > 1e-9 {
			t.Errorf("approach point is %v rad from target, want %v", d, short)
		}
	})
}

func TestNormalizeDeg(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, -180},
		{-180, -180},
		{270, -90},
		{-270, 90},
		{725, 5},
	}
	for _, tt := range tests {
		if got := NormalizeDeg(tt.in); math.Abs(got-tt.want) > tolerance {
			t.Errorf("NormalizeDeg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoordinates_String(t *testing.T) {
	c := Coordinates{Lat: -12.5, Lon: 190}
	want := "12.500000°S 170.000000°W"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDestination(t *testing.T) {
	start := Coordinates{Lat: 0, Lon: 90}
	p := Destination(start, -90, math.Pi/2)
	if math.Abs(p.Lat) > 1e-9 || math.Abs(p.Lon) > 1e-9 {
		t.Errorf("Destination west a quarter turn = %v, want (0, 0)", p)
	}

	north := Destination(Coordinates{}, 0, math.Pi/4)
	if math.Abs(north.Lat-45) > 1e-9 || math.Abs(north.Lon) > 1e-9 {
		t.Errorf("Destination north = %v, want (45, 0)", north)
	}
}
