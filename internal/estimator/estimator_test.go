package estimator

import (
	"math"
	"testing"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
)

func TestEstimateRejectsEmptyObservations(t *testing.T) {
	_, err := Estimate(nil, nil, DefaultParams())
	if err != ErrNoObservations {
		t.Fatalf("expected ErrNoObservations, got %v", err)
	}
}

func TestSingleKitEstimateIsKitPosition(t *testing.T) {
	obs := []Observation{{KitID: "k1", Lat: 10, Lon: 20, RSSI: -60}}
	res, err := Estimate(obs, nil, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Algorithm != AlgorithmSingleKit {
		t.Errorf("algorithm = %s, want %s", res.Algorithm, AlgorithmSingleKit)
	}
	if res.Estimated.Lat != 10 || res.Estimated.Lon != 20 {
		t.Errorf("estimated = %+v, want kit position", res.Estimated)
	}
	if res.ConfidenceRadiusM != res.Observations[0].DistanceM {
		t.Errorf("confidence radius should equal estimated distance for single_kit")
	}
}

func TestTwoKitWeightedFavoursCloserKit(t *testing.T) {
	// k1 much closer (-40 dBm) than k2 (-80 dBm) at the same TxPower/n.
	obs := []Observation{
		{KitID: "k1", Lat: 0, Lon: 0, RSSI: -40},
		{KitID: "k2", Lat: 0, Lon: 1, RSSI: -80},
	}
	res, err := Estimate(obs, nil, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Algorithm != AlgorithmTwoKit {
		t.Fatalf("algorithm = %s, want %s", res.Algorithm, AlgorithmTwoKit)
	}
	if res.Estimated.Lon >= 0.5 {
		t.Errorf("estimate should sit closer to the stronger-signal kit, got lon=%v", res.Estimated.Lon)
	}
}

// TestEstimatorScenarioS5 mirrors spec scenario S5: 3 kits, no spoof.
func TestEstimatorScenarioS5(t *testing.T) {
	obs := []Observation{
		{KitID: "a", Lat: 0, Lon: 0, RSSI: -60},
		{KitID: "b", Lat: 0, Lon: 0.001, RSSI: -65},
		{KitID: "c", Lat: 0.001, Lon: 0, RSSI: -70},
	}
	actual := geo.Point{Lat: 0.0003, Lon: 0.0003}

	res, err := Estimate(obs, &actual, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Algorithm != AlgorithmTrilateration {
		t.Fatalf("algorithm = %s, want %s", res.Algorithm, AlgorithmTrilateration)
	}
	if res.ErrorMeters == nil {
		t.Fatal("expected ErrorMeters to be set")
	}
	if *res.ErrorMeters >= res.ConfidenceRadiusM {
		t.Errorf("S5 expects error_m < confidence_radius_m, got error=%v radius=%v", *res.ErrorMeters, res.ConfidenceRadiusM)
	}
	if res.SpoofingScore == nil || *res.SpoofingScore >= 0.3 {
		t.Errorf("S5 expects spoofing_score < 0.3, got %v", res.SpoofingScore)
	}
}

// TestEstimatorScenarioS6 mirrors spec scenario S6: same geometry as S5
// but the drone's reported position is wildly off, past the spoofing
// threshold.
func TestEstimatorScenarioS6(t *testing.T) {
	obs := []Observation{
		{KitID: "a", Lat: 0, Lon: 0, RSSI: -60},
		{KitID: "b", Lat: 0, Lon: 0.001, RSSI: -65},
		{KitID: "c", Lat: 0.001, Lon: 0, RSSI: -70},
	}
	actual := geo.Point{Lat: 1.0, Lon: 1.0}

	res, err := Estimate(obs, &actual, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SpoofingScore == nil || *res.SpoofingScore < 0.7 {
		t.Fatalf("S6 expects spoofing_score >= 0.7, got %v", res.SpoofingScore)
	}
	if res.SpoofingSuspected == nil || !*res.SpoofingSuspected {
		t.Fatal("S6 expects spoofing_suspected=true")
	}
	if res.SpoofingReason == nil || *res.SpoofingReason == "" {
		t.Fatal("S6 expects a non-empty spoofing reason")
	}
}

// TestSpoofingScoreMonotone validates property 8: non-decreasing in
// error_m and zero at error_m=0, for a fixed kit count.
func TestSpoofingScoreMonotone(t *testing.T) {
	const confidence = 10.0
	const numKits = 4

	if got := SpoofingScore(0, confidence, numKits); got != 0 {
		t.Errorf("SpoofingScore(0, ...) = %v, want 0", got)
	}

	prev := 0.0
	for errM := 1.0; errM <= 120; errM += 1.0 {
		score := SpoofingScore(errM, confidence, numKits)
		if score < prev {
			t.Fatalf("score decreased at error_m=%v: %v < %v", errM, score, prev)
		}
		prev = score
	}

	if score := SpoofingScore(1000, confidence, numKits); score > 1 || score < 0.7 {
		t.Errorf("far-out error should saturate near 1.0, got %v", score)
	}
}

// TestSpoofingScoreDampedByFewerCorroboratingKits validates the
// kit-count confidence factor: the same error ratio scores lower when
// fewer kits observed the drone.
func TestSpoofingScoreDampedByFewerCorroboratingKits(t *testing.T) {
	const confidence = 10.0
	const errM = 50.0

	four := SpoofingScore(errM, confidence, 4)
	three := SpoofingScore(errM, confidence, 3)
	two := SpoofingScore(errM, confidence, 2)
	one := SpoofingScore(errM, confidence, 1)

	if !(four >= three && three >= two && two >= one) {
		t.Errorf("expected score to decrease with fewer kits: 4kit=%v 3kit=%v 2kit=%v 1kit=%v", four, three, two, one)
	}
}

func TestSpoofingScoreZeroConfidenceRadiusIsZero(t *testing.T) {
	if got := SpoofingScore(50, 0, 4); got != 0 {
		t.Errorf("SpoofingScore with zero confidence radius = %v, want 0", got)
	}
}

// TestEstimatorContinuitySingleAndTwoKit validates property 7 for the
// cases where it holds exactly: single_kit ignores distance entirely,
// and two_kit_weighted's weight ratio is invariant to a uniform RSSI
// shift since both distances scale by the same factor.
func TestEstimatorContinuitySingleAndTwoKit(t *testing.T) {
	base := []Observation{
		{KitID: "k1", Lat: 1, Lon: 1, RSSI: -50},
		{KitID: "k2", Lat: 1, Lon: 2, RSSI: -70},
	}
	shifted := []Observation{
		{KitID: "k1", Lat: 1, Lon: 1, RSSI: -50 + 10},
		{KitID: "k2", Lat: 1, Lon: 2, RSSI: -70 + 10},
	}

	r1, _ := Estimate(base, nil, DefaultParams())
	r2, _ := Estimate(shifted, nil, DefaultParams())

	if math.Abs(r1.Estimated.Lat-r2.Estimated.Lat) > 1e-9 || math.Abs(r1.Estimated.Lon-r2.Estimated.Lon) > 1e-9 {
		t.Errorf("estimated position changed under a uniform RSSI shift: %+v vs %+v", r1.Estimated, r2.Estimated)
	}

	wantFactor := math.Pow(10, 10.0/(10*DefaultParams().PathLossExponent))
	gotFactor := r1.ConfidenceRadiusM / r2.ConfidenceRadiusM
	if math.Abs(gotFactor-wantFactor) > 1e-6 {
		t.Errorf("confidence radius scale factor = %v, want %v", gotFactor, wantFactor)
	}

	s1, _ := Estimate(base[:1], nil, DefaultParams())
	s2, _ := Estimate(shifted[:1], nil, DefaultParams())

	if math.Abs(s1.Estimated.Lat-s2.Estimated.Lat) > 1e-9 || math.Abs(s1.Estimated.Lon-s2.Estimated.Lon) > 1e-9 {
		t.Errorf("single-kit position changed under a uniform RSSI shift: %+v vs %+v", s1.Estimated, s2.Estimated)
	}
	if gotSingle := s1.ConfidenceRadiusM / s2.ConfidenceRadiusM; math.Abs(gotSingle-wantFactor) > 1e-6 {
		t.Errorf("single-kit confidence radius scale factor = %v, want %v", gotSingle, wantFactor)
	}
}

func TestTrilaterationConvergesNearSymmetricGeometry(t *testing.T) {
	// Three kits roughly equidistant from a central point (the triangle's
	// circumcentre, about (0.001, 0.00075)) with equal RSSI: verify the
	// solver lands within 25 m of that point and the confidence radius
	// is non-negative.
	obs := []Observation{
		{KitID: "a", Lat: 0, Lon: 0, RSSI: -60},
		{KitID: "b", Lat: 0.002, Lon: 0, RSSI: -60},
		{KitID: "c", Lat: 0.001, Lon: 0.002, RSSI: -60},
	}
	res, err := Estimate(obs, nil, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	centre := geo.Point{Lat: 0.001, Lon: 0.00075}
	if d := geo.HaversineMeters(geo.Point{Lat: res.Estimated.Lat, Lon: res.Estimated.Lon}, centre); d > 25 {
		t.Errorf("expected the estimate within 25 m of the circumcentre, got %v m away (%+v)", d, res.Estimated)
	}
	if res.ConfidenceRadiusM < 0 {
		t.Errorf("confidence radius should never be negative, got %v", res.ConfidenceRadiusM)
	}
}
