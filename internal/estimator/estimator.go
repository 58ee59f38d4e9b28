// Package estimator implements the RSSI location estimator with
// GPS-spoofing detection (spec §4.5.8): converting per-kit RSSI
// observations to path-loss distances, combining them into a position
// estimate by observation count, and scoring the divergence from a
// drone's self-reported GPS fix.
package estimator

import (
	"fmt"
	"math"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
)

// Algorithm names returned in Result.Algorithm.
const (
	AlgorithmSingleKit  = "single_kit"
	AlgorithmTwoKit     = "two_kit_weighted"
	AlgorithmTrilateration = "trilateration"
)

// Params configures the path-loss model and the trilateration solver.
// Zero-valued fields fall back to the documented defaults.
type Params struct {
	TxPowerDBm       float64
	PathLossExponent float64
	MaxIterations    int
	ConvergenceM     float64
}

// DefaultParams matches spec §4.5.8's documented defaults.
func DefaultParams() Params {
	return Params{
		TxPowerDBm:       0,
		PathLossExponent: 2.5,
		MaxIterations:    100,
		ConvergenceM:     1.0,
	}
}

func (p Params) withDefaults() Params {
	if p.PathLossExponent == 0 {
		p.PathLossExponent = 2.5
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = 100
	}
	if p.ConvergenceM == 0 {
		p.ConvergenceM = 1.0
	}
	return p
}

// Observation is one kit's RSSI reading of the target drone, paired with
// that kit's own position in the same time window.
type Observation struct {
	KitID string  `json:"kit_id"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	RSSI  float64 `json:"rssi"`
}

// ObservationDistance is one kit's observation together with its
// path-loss-derived distance estimate, returned for client display.
type ObservationDistance struct {
	KitID     string  `json:"kit_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	RSSI      float64 `json:"rssi"`
	DistanceM float64 `json:"distance_m"`
}

// Result is the full response shape of spec §4.5.8 item 5.
type Result struct {
	Algorithm         string                `json:"algorithm"`
	Observations      []ObservationDistance `json:"observations"`
	Estimated         geo.Point             `json:"estimated"`
	Actual            *geo.Point            `json:"actual"`
	ErrorMeters       *float64              `json:"error_meters"`
	ConfidenceRadiusM float64               `json:"confidence_radius_m"`
	SpoofingScore     *float64              `json:"spoofing_score"`
	SpoofingSuspected *bool                 `json:"spoofing_suspected"`
	SpoofingReason    *string               `json:"spoofing_reason"`
}

// ErrNoObservations is returned when no usable observation exists in the
// time window; the API layer maps it to 404 per spec §7.
var ErrNoObservations = fmt.Errorf("estimator: no observations in window")

// Estimate runs the full spec §4.5.8 pipeline: distance conversion,
// algorithm selection by observation count, and optional spoofing
// scoring against the drone's own reported position.
func Estimate(observations []Observation, actual *geo.Point, params Params) (Result, error) {
	if len(observations) == 0 {
		return Result{}, ErrNoObservations
	}
	params = params.withDefaults()

	dists := make([]ObservationDistance, len(observations))
	for i, o := range observations {
		dists[i] = ObservationDistance{
			KitID:     o.KitID,
			Lat:       o.Lat,
			Lon:       o.Lon,
			RSSI:      o.RSSI,
			DistanceM: geo.PathLossDistance(params.TxPowerDBm, o.RSSI, params.PathLossExponent),
		}
	}

	var result Result
	result.Observations = dists

	switch len(dists) {
	case 1:
		result.Algorithm = AlgorithmSingleKit
		result.Estimated = geo.Point{Lat: dists[0].Lat, Lon: dists[0].Lon}
		result.ConfidenceRadiusM = dists[0].DistanceM
	case 2:
		result.Algorithm = AlgorithmTwoKit
		result.Estimated, result.ConfidenceRadiusM = twoKitWeighted(dists)
	default:
		result.Algorithm = AlgorithmTrilateration
		result.Estimated, result.ConfidenceRadiusM = trilaterate(dists, params)
	}

	if actual != nil && result.ConfidenceRadiusM > 0 {
		result.Actual = actual
		errM := geo.HaversineMeters(result.Estimated, *actual)
		result.ErrorMeters = &errM

		score := SpoofingScore(errM, result.ConfidenceRadiusM, len(observations))
		result.SpoofingScore = &score

		suspected := score >= 0.5
		result.SpoofingSuspected = &suspected

		ratio := errM / result.ConfidenceRadiusM
		switch {
		case suspected && ratio > 4.0:
			reason := fmt.Sprintf("Position error (%.0fm) is %.1fx the expected accuracy (%.0fm)", errM, ratio, result.ConfidenceRadiusM)
			result.SpoofingReason = &reason
		case suspected:
			reason := fmt.Sprintf("Position error (%.0fm) significantly exceeds expected accuracy (%.0fm)", errM, result.ConfidenceRadiusM)
			result.SpoofingReason = &reason
		case score >= 0.3:
			reason := fmt.Sprintf("Position deviation (%.0fm) is outside expected accuracy (%.0fm) - warrants monitoring", errM, result.ConfidenceRadiusM)
			result.SpoofingReason = &reason
		}
	} else if actual != nil {
		result.Actual = actual
		errM := geo.HaversineMeters(result.Estimated, *actual)
		result.ErrorMeters = &errM
	}

	return result, nil
}

// twoKitWeighted implements spec §4.5.8 item 3's 2-kit case: a weighted
// point on the line between the kits, weight ∝ 1/d (closer kit wins).
func twoKitWeighted(dists []ObservationDistance) (geo.Point, float64) {
	a, b := dists[0], dists[1]

	wa := invOrLarge(a.DistanceM)
	wb := invOrLarge(b.DistanceM)
	sum := wa + wb

	est := geo.Point{
		Lat: (a.Lat*wa + b.Lat*wb) / sum,
		Lon: (a.Lon*wa + b.Lon*wb) / sum,
	}
	confidence := (a.DistanceM + b.DistanceM) / 2
	return est, confidence
}

func invOrLarge(d float64) float64 {
	if d <= 0 {
		return 1e9
	}
	return 1 / d
}

// trilaterate implements spec §4.5.8 item 3's ≥3-kit case: gradient
// descent on the residuals ‖p − kit_i‖ − d_i in a local tangent-plane
// projection, starting from the inverse-distance-weighted centroid.
func trilaterate(dists []ObservationDistance, params Params) (geo.Point, float64) {
	proj := newLocalProjection(dists)

	p := weightedCentroidXY(dists, proj)

	const learningRate = 0.2
	for iter := 0; iter < params.MaxIterations; iter++ {
		gx, gy := 0.0, 0.0
		for _, d := range dists {
			kx, ky := proj.toXY(d.Lat, d.Lon)
			dx, dy := p.x-kx, p.y-ky
			dist := math.Hypot(dx, dy)
			if dist < 1e-9 {
				continue
			}
			residual := dist - d.DistanceM
			gx += residual * dx / dist
			gy += residual * dy / dist
		}
		gx /= float64(len(dists))
		gy /= float64(len(dists))

		shiftX := -learningRate * gx
		shiftY := -learningRate * gy
		p.x += shiftX
		p.y += shiftY

		if math.Hypot(shiftX, shiftY) < params.ConvergenceM {
			break
		}
	}

	sumSq := 0.0
	for _, d := range dists {
		kx, ky := proj.toXY(d.Lat, d.Lon)
		dist := math.Hypot(p.x-kx, p.y-ky)
		residual := dist - d.DistanceM
		sumSq += residual * residual
	}
	rms := math.Sqrt(sumSq / float64(len(dists)))

	lat, lon := proj.toLatLon(p.x, p.y)
	return geo.Point{Lat: lat, Lon: lon}, rms
}

type xy struct{ x, y float64 }

func weightedCentroidXY(dists []ObservationDistance, proj localProjection) xy {
	sumW, sx, sy := 0.0, 0.0, 0.0
	for _, d := range dists {
		w := invOrLarge(d.DistanceM)
		kx, ky := proj.toXY(d.Lat, d.Lon)
		sx += w * kx
		sy += w * ky
		sumW += w
	}
	return xy{x: sx / sumW, y: sy / sumW}
}

// localProjection is an equirectangular tangent-plane approximation
// centred on the observation set, accurate enough over the few-km
// spans trilateration operates on.
type localProjection struct {
	originLat float64
	originLon float64
	mPerDegLat float64
	mPerDegLon float64
}

func newLocalProjection(dists []ObservationDistance) localProjection {
	var sumLat, sumLon float64
	for _, d := range dists {
		sumLat += d.Lat
		sumLon += d.Lon
	}
	n := float64(len(dists))
	originLat := sumLat / n
	originLon := sumLon / n

	return localProjection{
		originLat:  originLat,
		originLon:  originLon,
		mPerDegLat: 111320.0,
		mPerDegLon: 111320.0 * math.Cos(originLat*math.Pi/180),
	}
}

func (p localProjection) toXY(lat, lon float64) (float64, float64) {
	return (lon - p.originLon) * p.mPerDegLon, (lat - p.originLat) * p.mPerDegLat
}

func (p localProjection) toLatLon(x, y float64) (float64, float64) {
	lat := p.originLat + y/p.mPerDegLat
	lon := p.originLon + x/p.mPerDegLon
	return lat, lon
}

// SpoofingScore implements spec §4.5.8 item 4's error-ratio/kit-count
// curve: a piecewise base score from ratio = errM/confidenceRadiusM
// (0.15 per unit of ratio up to 0.6 at 4x, then 0.05 per unit until it
// reaches 1.0 at 12x), scaled down when fewer kits corroborate the
// estimate — a deviation backed by a single kit is far less certain
// than one backed by four. Monotone non-decreasing in errM. The result
// is rounded to two decimals, so a small non-zero errM can score 0, and
// a non-positive confidenceRadiusM always scores 0.
func SpoofingScore(errM, confidenceRadiusM float64, numKits int) float64 {
	if confidenceRadiusM <= 0 {
		return 0
	}
	ratio := errM / confidenceRadiusM

	var base float64
	switch {
	case ratio <= 1.0:
		base = ratio * 0.15
	case ratio <= 2.0:
		base = 0.15 + (ratio-1.0)*0.15
	case ratio <= 4.0:
		base = 0.3 + (ratio-2.0)*0.15
	default:
		base = 0.6 + math.Min(0.4, (ratio-4.0)*0.05)
	}

	var kitFactor float64
	switch {
	case numKits >= 4:
		kitFactor = 1.0
	case numKits == 3:
		kitFactor = 0.85
	case numKits == 2:
		kitFactor = 0.7
	default:
		kitFactor = 0.5
	}

	score := math.Min(1.0, base*kitFactor)
	return math.Round(score*100) / 100
}
