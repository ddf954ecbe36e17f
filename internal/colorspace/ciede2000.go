package colorspace

import (
	"fmt"
	"math"
)

const (
	pow25To7 = 6103515625.0 // 25^7
	twoPi    = 2 * math.Pi
)

func deg(d float64) float64 { return d * math.Pi / 180 }

// DeltaE2000 returns the CIEDE2000 color difference between two LAB colors
// with k_L = k_C = k_H = 1.
//
// Non-finite components mean an upstream extraction bug and cause a panic.
func DeltaE2000(c1, c2 Lab) float64 {
	if !c1.Finite() || !c2.Finite() {
		panic(fmt.Sprintf("colorspace: DeltaE2000 given non-finite LAB %v / %v", c1, c2))
	}

	// Chroma averaging and the G factor that rotates a* for neutral colors.
	cab1 := math.Hypot(c1.A, c1.B)
	cab2 := math.Hypot(c2.A, c2.B)
	cabBar7 := math.Pow((cab1+cab2)/2, 7)
	g := 0.5 * (1 - math.Sqrt(cabBar7/(cabBar7+pow25To7)))

	a1 := (1 + g) * c1.A
	a2 := (1 + g) * c2.A
	cp1 := math.Hypot(a1, c1.B)
	cp2 := math.Hypot(a2, c2.B)
	hp1 := hueAngle(c1.B, a1)
	hp2 := hueAngle(c2.B, a2)

	dL := c2.L - c1.L
	dC := cp2 - cp1

	// Hue difference folded onto the shortest arc.
	var dh float64
	cpProduct := cp1 * cp2
	if cpProduct != 0 {
		dh = hp2 - hp1
		if dh > math.Pi {
			dh -= twoPi
		} else if dh < -math.Pi {
			dh += twoPi
		}
	}
	dH := 2 * math.Sqrt(cpProduct) * math.Sin(dh/2)

	lBar := (c1.L + c2.L) / 2
	cBar := (cp1 + cp2) / 2

	hBar := hp1 + hp2
	if cpProduct != 0 {
		switch {
		case math.Abs(hp1-hp2) <= math.Pi:
			hBar /= 2
		case hBar < twoPi:
			hBar = (hBar + twoPi) / 2
		default:
			hBar = (hBar - twoPi) / 2
		}
	}

	t := 1 - 0.17*math.Cos(hBar-deg(30)) +
		0.24*math.Cos(2*hBar) +
		0.32*math.Cos(3*hBar+deg(6)) -
		0.20*math.Cos(4*hBar-deg(63))

	dTheta := deg(30) * math.Exp(-math.Pow((hBar-deg(275))/deg(25), 2))
	cBar7 := math.Pow(cBar, 7)
	rc := 2 * math.Sqrt(cBar7/(cBar7+pow25To7))
	rt := -math.Sin(2*dTheta) * rc

	lBar50 := (lBar - 50) * (lBar - 50)
	sl := 1 + 0.015*lBar50/math.Sqrt(20+lBar50)
	sc := 1 + 0.045*cBar
	sh := 1 + 0.015*cBar*t

	tl := dL / sl
	tc := dC / sc
	th := dH / sh
	return math.Sqrt(tl*tl + tc*tc + th*th + rt*tc*th)
}

// hueAngle returns atan2(b, a) normalised to [0, 2π); zero chroma maps to 0.
func hueAngle(b, a float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	h := math.Atan2(b, a)
	if h < 0 {
		h += twoPi
	}
	return h
}
