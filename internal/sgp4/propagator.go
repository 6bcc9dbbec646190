package sgp4

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/transform"
)

// Resonance classifies the deep-space resonance integration an orbit needs.
type Resonance int

const (
	ResonanceNone        Resonance = iota
	ResonanceSynchronous           // 24-hour orbits
	ResonanceHalfDay               // 12-hour orbits with eccentricity of at least 0.5
)

func (r Resonance) String() string {
	switch r {
	case ResonanceSynchronous:
		return "synchronous"
	case ResonanceHalfDay:
		return "half-day"
	default:
		return "none"
	}
}

// Propagator holds the constants derived from one element set.
// Exactly one model variant applies: near-Earth when deep is nil.
type Propagator struct {
	catalogNumber int
	epoch         time.Time

	// Mean elements at epoch: radians, and radians per minute for no,
	// the Brouwer mean motion recovered from the Kozai value.
	bstar, ecco, argpo, inclo, mo, no, nodeo float64

	// Secular rates.
	mdot, argpdot, nodedot, nodecf float64

	cc1, cc4, t2cof       float64
	con41, x1mth2, x7thm1 float64
	aycof, xlcof          float64
	gsto                  float64

	drag *dragTerms // nil in the simplified drag model
	deep *deepSpace
}

// dragTerms are the higher-order atmospheric drag terms of the full
// near-Earth model, used when perigee is at or above 220 km.
type dragTerms struct {
	eta, omgcof, xmcof, delmo, sinmao, cc5 float64
	d2, d3, d4, t3cof, t4cof, t5cof        float64
}

// New derives propagation constants from an element set.
func New(es *tle.ElementSet) (*Propagator, error) {
	if es == nil {
		return nil, &InitError{Reason: "nil element set"}
	}
	p := &Propagator{
		catalogNumber: es.CatalogNumber,
		epoch:         es.Epoch,
		bstar:         es.BStar,
		ecco:          es.Eccentricity,
		argpo:         es.ArgPerigee * deg2rad,
		inclo:         es.Inclination * deg2rad,
		mo:            es.MeanAnomaly * deg2rad,
		no:            es.MeanMotion * twoPi / minutesPerDay,
		nodeo:         es.RAAN * deg2rad,
	}
	if !(p.no > 0) || math.IsInf(p.no, 0) {
		return nil, &InitError{CatalogNumber: p.catalogNumber, Reason: "mean motion must be positive"}
	}
	if !(p.ecco >= 0 && p.ecco < 1) {
		return nil, &InitError{CatalogNumber: p.catalogNumber, Reason: "eccentricity outside [0, 1)"}
	}

	epochDays := julian.CalendarGregorianToJD(es.EpochYear, 1, es.EpochDay) - jd1950
	if err := p.init(epochDays); err != nil {
		return nil, err
	}

	// Reject element sets that are already outside the model at epoch.
	if _, err := p.PropagateMinutes(0); err != nil {
		return nil, &InitError{CatalogNumber: p.catalogNumber, Reason: "invalid at epoch", Err: err}
	}
	return p, nil
}

// init is Vallado's initl and sgp4init. epoch is days since 1950 Jan 0.0.
func (p *Propagator) init(epoch float64) error {
	const temp4 = 1.5e-12

	ss := 78.0/earthRadiusKm + 1.0
	qzms2t := math.Pow((120.0-78.0)/earthRadiusKm, 4)

	// Recover the Brouwer mean motion and semi-major axis.
	eccsq := p.ecco * p.ecco
	omeosq := 1.0 - eccsq
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(p.inclo)
	cosio2 := cosio * cosio

	ak := math.Pow(xke/p.no, x2o3)
	d1 := 0.75 * j2 * (3.0*cosio2 - 1.0) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1.0 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	p.no /= 1.0 + del

	ao := math.Pow(xke/p.no, x2o3)
	sinio := math.Sin(p.inclo)
	po := ao * omeosq
	con42 := 1.0 - 5.0*cosio2
	p.con41 = -con42 - cosio2 - cosio2
	posq := po * po
	rp := ao * (1.0 - p.ecco)
	p.gsto = transform.GMSTFromJD(epoch + jd1950)

	if rp < 1.0 {
		return &InitError{CatalogNumber: p.catalogNumber, Reason: "perigee below the earth's surface",
			Err: &PropagationError{CatalogNumber: p.catalogNumber, Kind: ErrDecayedOrbit,
				Reason: "perigee radius below one earth radius", Value: rp}}
	}

	simplified := rp < 220.0/earthRadiusKm+1.0

	// Perigee below 156 km alters the atmospheric density parameters.
	sfour := ss
	qzms24 := qzms2t
	perige := (rp - 1.0) * earthRadiusKm
	if perige < 156.0 {
		sfour = perige - 78.0
		if perige < 98.0 {
			sfour = 20.0
		}
		qzms24 = math.Pow((120.0-sfour)/earthRadiusKm, 4)
		sfour = sfour/earthRadiusKm + 1.0
	}
	pinvsq := 1.0 / posq

	tsi := 1.0 / (ao - sfour)
	eta := ao * p.ecco * tsi
	etasq := eta * eta
	eeta := p.ecco * eta
	psisq := math.Abs(1.0 - etasq)
	coef := qzms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)
	cc2 := coef1 * p.no * (ao*(1.0+1.5*etasq+eeta*(4.0+etasq)) +
		0.375*j2*tsi/psisq*p.con41*(8.0+3.0*etasq*(8.0+etasq)))
	p.cc1 = p.bstar * cc2
	cc3 := 0.0
	if p.ecco > 1.0e-4 {
		cc3 = -2.0 * coef * tsi * j3oj2 * p.no * sinio / p.ecco
	}
	p.x1mth2 = 1.0 - cosio2
	p.cc4 = 2.0 * p.no * coef1 * ao * omeosq *
		(eta*(2.0+0.5*etasq) + p.ecco*(0.5+2.0*etasq) -
			j2*tsi/(ao*psisq)*(-3.0*p.con41*(1.0-2.0*eeta+etasq*(1.5-0.5*eeta))+
				0.75*p.x1mth2*(2.0*etasq-eeta*(1.0+etasq))*math.Cos(2.0*p.argpo)))
	cc5 := 2.0 * coef1 * ao * omeosq * (1.0 + 2.75*(etasq+eeta) + eeta*etasq)

	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * j2 * pinvsq * p.no
	temp2 := 0.5 * temp1 * j2 * pinvsq
	temp3 := -0.46875 * j4 * pinvsq * pinvsq * p.no
	p.mdot = p.no + 0.5*temp1*rteosq*p.con41 +
		0.0625*temp2*rteosq*(13.0-78.0*cosio2+137.0*cosio4)
	p.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7.0-114.0*cosio2+395.0*cosio4) +
		temp3*(3.0-36.0*cosio2+49.0*cosio4)
	xhdot1 := -temp1 * cosio
	p.nodedot = xhdot1 + (0.5*temp2*(4.0-19.0*cosio2)+2.0*temp3*(3.0-7.0*cosio2))*cosio
	xpidot := p.argpdot + p.nodedot

	p.nodecf = 3.5 * omeosq * xhdot1 * p.cc1
	p.t2cof = 1.5 * p.cc1
	if math.Abs(cosio+1.0) > 1.5e-12 {
		p.xlcof = -0.25 * j3oj2 * sinio * (3.0 + 5.0*cosio) / (1.0 + cosio)
	} else {
		p.xlcof = -0.25 * j3oj2 * sinio * (3.0 + 5.0*cosio) / temp4
	}
	p.aycof = -0.5 * j3oj2 * sinio
	p.x7thm1 = 7.0*cosio2 - 1.0

	if twoPi/p.no >= deepSpacePeriod {
		p.deep = newDeepSpace(p, epoch, eccsq, xpidot)
		return nil
	}
	if simplified {
		return nil
	}

	d := &dragTerms{
		eta:    eta,
		omgcof: p.bstar * cc3 * math.Cos(p.argpo),
		delmo:  math.Pow(1.0+eta*math.Cos(p.mo), 3),
		sinmao: math.Sin(p.mo),
		cc5:    cc5,
	}
	if p.ecco > 1.0e-4 {
		d.xmcof = -x2o3 * coef * p.bstar / eeta
	}
	cc1sq := p.cc1 * p.cc1
	d.d2 = 4.0 * ao * tsi * cc1sq
	temp := d.d2 * tsi * p.cc1 / 3.0
	d.d3 = (17.0*ao + sfour) * temp
	d.d4 = 0.5 * temp * ao * tsi * (221.0*ao + 31.0*sfour) * p.cc1
	d.t3cof = d.d2 + 2.0*cc1sq
	d.t4cof = 0.25 * (3.0*d.d3 + p.cc1*(12.0*d.d2+10.0*cc1sq))
	d.t5cof = 0.2 * (3.0*d.d4 + 12.0*p.cc1*d.d3 + 6.0*d.d2*d.d2 + 15.0*cc1sq*(2.0*d.d2+cc1sq))
	p.drag = d
	return nil
}

// CatalogNumber returns the catalog number of the source element set.
func (p *Propagator) CatalogNumber() int { return p.catalogNumber }

// Epoch returns the element set epoch.
func (p *Propagator) Epoch() time.Time { return p.epoch }

// IsDeepSpace reports whether the SDP4 variant was selected.
func (p *Propagator) IsDeepSpace() bool { return p.deep != nil }

// Resonance returns the deep-space resonance class, or ResonanceNone for
// near-Earth orbits.
func (p *Propagator) Resonance() Resonance {
	if p.deep == nil {
		return ResonanceNone
	}
	return p.deep.res.kind
}

// Period returns the period implied by the recovered mean motion.
func (p *Propagator) Period() time.Duration {
	return time.Duration(twoPi / p.no * float64(time.Minute))
}

// Propagate evaluates the TEME state at instant at. Instants before the
// epoch propagate backwards.
func (p *Propagator) Propagate(at time.Time) (transform.StateVector, error) {
	sv, err := p.PropagateMinutes(at.Sub(p.epoch).Minutes())
	if err != nil {
		return transform.StateVector{}, err
	}
	sv.Time = at
	return sv, nil
}
