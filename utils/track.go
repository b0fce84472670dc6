package utils

import (
	"math"
)

// TrackPoint is one sampled pointer position during a drag, with the
// elapsed milliseconds since the drag started.
type TrackPoint struct {
	T int
	X int
	Y int
}

// DragTrack synthesizes a human-looking horizontal drag covering the
// given distance. The path follows a cubic bezier with slight vertical
// wobble and an ease-out timing curve; the returned passtime is the
// total duration in milliseconds.
func DragTrack(distance int, entropy *Entropy) ([]TrackPoint, int) {
	if distance < 1 {
		distance = 1
	}

	start := [2]int{entropy.Intn(30) + 10, entropy.Intn(20) + 20}
	end := [2]int{start[0] + distance, start[1] + entropy.Intn(8) - 4}

	deviation := 12
	ctrl1 := controlPoint(start, end, deviation, entropy)
	ctrl2 := controlPoint(start, end, deviation, entropy)

	steps := 18 + entropy.Intn(10)
	passtime := 600 + entropy.Intn(600)

	track := make([]TrackPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x, y := bezierAt(start, ctrl1, ctrl2, end, t)
		// Ease-out: most of the time is spent near the target.
		elapsed := int(float64(passtime) * (1 - math.Pow(1-t, 2)))
		track = append(track, TrackPoint{T: elapsed, X: x, Y: y})
	}

	return track, passtime
}

// ClickPasstime returns a plausible duration for n sequential clicks.
func ClickPasstime(n int, entropy *Entropy) int {
	if n < 1 {
		n = 1
	}
	total := 600 + entropy.Intn(600)
	for i := 1; i < n; i++ {
		total += 150 + entropy.Intn(250)
	}
	return total
}

func controlPoint(p1, p2 [2]int, deviation int, entropy *Entropy) [2]int {
	midX := (p1[0] + p2[0]) / 2
	midY := (p1[1] + p2[1]) / 2
	return [2]int{
		midX + entropy.Intn(deviation) - deviation/2,
		midY + entropy.Intn(deviation) - deviation/2,
	}
}

func bezierAt(start, ctrl1, ctrl2, end [2]int, t float64) (int, int) {
	x := math.Pow(1-t, 3)*float64(start[0]) + 3*t*math.Pow(1-t, 2)*float64(ctrl1[0]) +
		3*(1-t)*t*t*float64(ctrl2[0]) + t*t*t*float64(end[0])
	y := math.Pow(1-t, 3)*float64(start[1]) + 3*t*math.Pow(1-t, 2)*float64(ctrl1[1]) +
		3*(1-t)*t*t*float64(ctrl2[1]) + t*t*t*float64(end[1])
	return int(x), int(y)
}
