package sgp4

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/sattrack/internal/transform"
)

const (
	keplerMaxIter = 10
	keplerTol     = 1.0e-12
	keplerMaxStep = 0.95
)

// PropagateMinutes evaluates the TEME state tsince minutes from epoch.
// The returned state carries the instant epoch+tsince.
//
// Kepler's equation is solved by Newton iteration with the step clamped to
// ±0.95 rad, for at most ten iterations; if the correction is still above
// 1e-12 rad the last iterate is used.
func (p *Propagator) PropagateMinutes(tsince float64) (transform.StateVector, error) {
	const temp4 = 1.5e-12
	t := tsince

	// Secular gravity and atmospheric drag.
	xmdf := p.mo + p.mdot*t
	argpdf := p.argpo + p.argpdot*t
	nodedf := p.nodeo + p.nodedot*t
	argpm := argpdf
	mm := xmdf
	t2 := t * t
	nodem := nodedf + p.nodecf*t2
	tempa := 1.0 - p.cc1*t
	tempe := p.bstar * p.cc4 * t
	templ := p.t2cof * t2

	if d := p.drag; d != nil {
		delomg := d.omgcof * t
		delm := d.xmcof * (math.Pow(1.0+d.eta*math.Cos(xmdf), 3) - d.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * t
		t4 := t3 * t
		tempa = tempa - d.d2*t2 - d.d3*t3 - d.d4*t4
		tempe += p.bstar * d.cc5 * (math.Sin(mm) - d.sinmao)
		templ += d.t3cof*t3 + t4*(d.t4cof+t*d.t5cof)
	}

	nm := p.no
	em := p.ecco
	inclm := p.inclo
	if p.deep != nil {
		var s secularState
		s, nm = p.deep.secular(p, t, em, argpm, inclm, mm, nodem)
		em, argpm, inclm, mm, nodem = s.em, s.argpm, s.inclm, s.mm, s.nodem
	}

	if nm <= 0.0 {
		return p.fail(t, ErrInvalidDomain, "mean motion not positive", nm)
	}
	if tempa <= 0.0 {
		return p.fail(t, ErrDecayedOrbit, "drag reduced semi-major axis to zero", tempa)
	}
	am := math.Pow(xke/nm, x2o3) * tempa * tempa
	nm = xke / math.Pow(am, 1.5)
	em -= tempe

	if em >= 1.0 || em < -0.001 {
		return p.fail(t, ErrInvalidDomain, "mean eccentricity outside [0, 1)", em)
	}
	if em < 1.0e-6 {
		em = 1.0e-6
	}
	if rp := am * (1.0 - em); rp < 1.0 {
		return p.fail(t, ErrDecayedOrbit, "perigee radius below one earth radius", rp)
	}

	mm += p.no * templ
	xlm := mm + argpm + nodem

	nodem = math.Mod(nodem, twoPi)
	argpm = math.Mod(argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	// Lunar-solar periodics.
	ep := em
	xincp := inclm
	argpp := argpm
	nodep := nodem
	mp := mm
	sinip, cosip := math.Sincos(inclm)
	aycof, xlcof := p.aycof, p.xlcof
	if p.deep != nil {
		ep, xincp, nodep, argpp, mp = p.deep.periodics(t, ep, xincp, nodep, argpp, mp)
		if xincp < 0.0 {
			xincp = -xincp
			nodep += math.Pi
			argpp -= math.Pi
		}
		if ep < 0.0 || ep > 1.0 {
			return p.fail(t, ErrInvalidDomain, "perturbed eccentricity outside [0, 1]", ep)
		}
		sinip, cosip = math.Sincos(xincp)
		aycof = -0.5 * j3oj2 * sinip
		if math.Abs(cosip+1.0) > 1.5e-12 {
			xlcof = -0.25 * j3oj2 * sinip * (3.0 + 5.0*cosip) / (1.0 + cosip)
		} else {
			xlcof = -0.25 * j3oj2 * sinip * (3.0 + 5.0*cosip) / temp4
		}
	}

	// Long-period periodics.
	axnl := ep * math.Cos(argpp)
	temp := 1.0 / (am * (1.0 - ep*ep))
	aynl := ep*math.Sin(argpp) + temp*aycof
	xl := mp + argpp + nodep + temp*xlcof*axnl

	// Kepler's equation.
	u := math.Mod(xl-nodep, twoPi)
	eo1 := u
	tem5 := 9999.9
	var sineo1, coseo1 float64
	for ktr := 1; math.Abs(tem5) >= keplerTol && ktr <= keplerMaxIter; ktr++ {
		sineo1, coseo1 = math.Sincos(eo1)
		tem5 = 1.0 - coseo1*axnl - sineo1*aynl
		tem5 = (u - aynl*coseo1 + axnl*sineo1 - eo1) / tem5
		if math.Abs(tem5) >= keplerMaxStep {
			tem5 = math.Copysign(keplerMaxStep, tem5)
		}
		eo1 += tem5
	}

	// Short-period preliminary quantities.
	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1.0 - el2)
	if pl < 0.0 {
		return p.fail(t, ErrInvalidDomain, "semi-latus rectum negative", pl)
	}
	rl := am * (1.0 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1.0 - el2)
	temp = esine / (1.0 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1.0 - 2.0*sinu*sinu
	temp = 1.0 / pl
	temp1 := 0.5 * j2 * temp
	temp2 := temp1 * temp

	con41, x1mth2, x7thm1 := p.con41, p.x1mth2, p.x7thm1
	if p.deep != nil {
		cosisq := cosip * cosip
		con41 = 3.0*cosisq - 1.0
		x1mth2 = 1.0 - cosisq
		x7thm1 = 7.0*cosisq - 1.0
	}

	// Short-period periodics.
	mrt := rl*(1.0-1.5*temp2*betal*con41) + 0.5*temp1*x1mth2*cos2u
	su -= 0.25 * temp2 * x7thm1 * sin2u
	xnode := nodep + 1.5*temp2*cosip*sin2u
	xinc := xincp + 1.5*temp2*cosip*sinip*cos2u
	mvt := rdotl - nm*temp1*x1mth2*sin2u/xke
	rvdot := rvdotl + nm*temp1*(x1mth2*cos2u+1.5*con41)/xke

	// Orientation vectors.
	sinsu, cossu := math.Sincos(su)
	snod, cnod := math.Sincos(xnode)
	sini, cosi := math.Sincos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	uv := r3.Vec{X: xmx*sinsu + cnod*cossu, Y: xmy*sinsu + snod*cossu, Z: sini * sinsu}
	vv := r3.Vec{X: xmx*cossu - cnod*sinsu, Y: xmy*cossu - snod*sinsu, Z: sini * cossu}

	if mrt < 1.0 {
		return p.fail(t, ErrDecayedOrbit, "radius below one earth radius", mrt)
	}

	return transform.StateVector{
		Time:     p.epoch.Add(minutesToDuration(t)),
		Position: r3.Scale(mrt*earthRadiusKm, uv),
		Velocity: r3.Scale(vkmpersec, r3.Add(r3.Scale(mvt, uv), r3.Scale(rvdot, vv))),
	}, nil
}

func (p *Propagator) fail(t float64, kind error, reason string, v float64) (transform.StateVector, error) {
	return transform.StateVector{}, &PropagationError{
		CatalogNumber:     p.catalogNumber,
		MinutesSinceEpoch: t,
		Kind:              kind,
		Reason:            reason,
		Value:             v,
	}
}

func minutesToDuration(m float64) time.Duration {
	return time.Duration(math.Round(m * float64(time.Minute)))
}
