package geo

import "math"

const (
	// Mean Earth radius (IUGG) in kilometers.
	earthRadiusKm = 6371.0088

	// WGS-84 ellipsoid.
	wgs84A = 6378137.0
	wgs84B = 6356752.314245
	wgs84F = 1 / 298.257223563

	vincentyTolerance     = 1e-12
	vincentyMaxIterations = 100
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Geodesic is the result of an ellipsoidal distance calculation.
type Geodesic struct {
	DistanceKm        float64
	InitialBearingDeg float64
	FinalBearingDeg   float64
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// VincentyKm solves the inverse geodesic problem on the WGS-84 ellipsoid.
// Near-antipodal pairs that fail to converge fall back to the haversine
// distance with bearings from the spherical formula, so the result is
// always usable.
func VincentyKm(lat1, lng1, lat2, lng2 float64) Geodesic {
	if lat1 == lat2 && lng1 == lng2 {
		return Geodesic{}
	}

	u1 := math.Atan((1 - wgs84F) * math.Tan(radians(lat1)))
	u2 := math.Atan((1 - wgs84F) * math.Tan(radians(lat2)))
	l := radians(lng2 - lng1)

	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinLambda, cosLambda float64
	var sinSigma, cosSigma, sigma float64
	var sinAlpha, cosSqAlpha, cos2SigmaM float64

	converged := false
	for i := 0; i < vincentyMaxIterations; i++ {
		sinLambda, cosLambda = math.Sincos(lambda)

		sinSigma = math.Sqrt(
			(cosU2*sinLambda)*(cosU2*sinLambda) +
				(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			// Coincident points.
			return Geodesic{}
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha = cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha == 0 {
			// Equatorial line.
			cos2SigmaM = 0
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}

		cc := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = l + (1-cc)*wgs84F*sinAlpha*
			(sigma+cc*sinSigma*(cos2SigmaM+cc*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}

	if !converged {
		return Geodesic{
			DistanceKm:        HaversineKm(lat1, lng1, lat2, lng2),
			InitialBearingDeg: BearingDeg(lat1, lng1, lat2, lng2),
			FinalBearingDeg:   BearingDeg(lat2, lng2, lat1, lng1),
		}
	}

	uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	aa := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bb := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := bb * sinSigma * (cos2SigmaM + bb/4*
		(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bb/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	distanceM := wgs84B * aa * (sigma - deltaSigma)

	initial := math.Atan2(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
	final := math.Atan2(cosU1*sinLambda, -sinU1*cosU2+cosU1*sinU2*cosLambda)

	return Geodesic{
		DistanceKm:        distanceM / 1000,
		InitialBearingDeg: normalizeDeg(degrees(initial)),
		FinalBearingDeg:   normalizeDeg(degrees(final)),
	}
}

// BearingDeg returns the initial bearing from the first point to the
// second, in degrees [0, 360).
func BearingDeg(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLambda := radians(lng2 - lng1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return normalizeDeg(degrees(math.Atan2(y, x)))
}

// PathDistanceKm sums consecutive pairwise haversine distances along a path.
func PathDistanceKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

// VincentyPathDistanceKm sums consecutive pairwise ellipsoidal distances.
func VincentyPathDistanceKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += VincentyKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng).DistanceKm
	}
	return total
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeDeg(deg float64) float64 {
	return math.Mod(deg+360, 360)
}
