package sgp4

import "math"

// Lunar and solar constants.
const (
	zes  = 0.01675
	zel  = 0.05490
	zns  = 1.19459e-5
	znl  = 1.5835218e-4
	c1ss = 2.9864797e-6
	c1l  = 4.7968065e-7

	zsinis = 0.39785416
	zcosis = 0.91744867
	zcosgs = 0.1945905
	zsings = -0.98088458
)

// Resonance constants.
const (
	q22    = 1.7891679e-6
	q31    = 2.1460748e-6
	q33    = 2.2123015e-7
	root22 = 1.7891679e-6
	root32 = 3.7393792e-7
	root44 = 7.3636953e-9
	root52 = 1.1428639e-7
	root54 = 2.1765803e-9
	rptim  = 4.37526908801129966e-3 // earth rotation, rad/min

	fasx2 = 0.13130908
	fasx4 = 2.8843198
	fasx6 = 0.37448087
	g22   = 5.7686396
	g32   = 0.95240898
	g44   = 1.8014998
	g52   = 1.0508330
	g54   = 4.4108898

	// Resonance integrator step, minutes. step2 is step²/2.
	resonanceStep = 720.0
	step2         = 259200.0
)

// deepSpace holds the SDP4 constants: lunar-solar periodic coefficients,
// lunar-solar secular rates and the resonance integration terms.
type deepSpace struct {
	lp lunarSolarCoeffs

	dedt, didt, dmdt, domdt, dnodt float64

	res resonanceTerms
}

// lunarSolarCoeffs are the long-period lunar-solar coefficients (dscom).
type lunarSolarCoeffs struct {
	e3, ee2, se2, se3, sgh2, sgh3, sgh4, sh2, sh3, si2, si3, sl2, sl3, sl4 float64
	xgh2, xgh3, xgh4, xh2, xh3, xi2, xi3, xl2, xl3, xl4                   float64
	zmol, zmos                                                            float64
}

type resonanceTerms struct {
	kind Resonance

	d2201, d2211, d3210, d3222, d4410, d4422, d5220, d5232, d5421, d5433 float64
	del1, del2, del3                                                     float64
	xfact, xlamo                                                         float64
}

// dscomTerms are the dscom intermediates consumed by dsinit.
type dscomTerms struct {
	sinim, cosim, emsq float64

	s1, s2, s3, s4, s5                                 float64
	ss1, ss2, ss3, ss4, ss5                            float64
	sz1, sz3, sz11, sz13, sz21, sz23, sz31, sz33       float64
	z1, z3, z11, z13, z21, z23, z31, z33               float64
}

func newDeepSpace(p *Propagator, epoch, eccsq, xpidot float64) *deepSpace {
	ds := &deepSpace{}
	terms := ds.dscom(epoch, p.ecco, p.argpo, p.inclo, p.nodeo, p.no)
	ds.dsinit(p, terms, eccsq, xpidot)
	return ds
}

// dscom computes the lunar and solar perturbation coefficients at epoch.
func (ds *deepSpace) dscom(epoch, ep, argpp, inclp, nodep, np float64) dscomTerms {
	var d dscomTerms
	nm := np
	em := ep
	snodm, cnodm := math.Sincos(nodep)
	sinomm, cosomm := math.Sincos(argpp)
	d.sinim, d.cosim = math.Sincos(inclp)
	d.emsq = em * em
	betasq := 1.0 - d.emsq
	rtemsq := math.Sqrt(betasq)

	day := epoch + 18261.5
	xnodce := math.Mod(4.5236020-9.2422029e-4*day, twoPi)
	stem, ctem := math.Sincos(xnodce)
	zcosil := 0.91375164 - 0.03568096*ctem
	zsinil := math.Sqrt(1.0 - zcosil*zcosil)
	zsinhl := 0.089683511 * stem / zsinil
	zcoshl := math.Sqrt(1.0 - zsinhl*zsinhl)
	gam := 5.8351514 + 0.0019443680*day
	zx := 0.39785416 * stem / zsinil
	zy := zcoshl*ctem + 0.91744867*zsinhl*stem
	zx = math.Atan2(zx, zy)
	zx = gam + zx - xnodce
	zsingl, zcosgl := math.Sincos(zx)

	// First pass uses the solar terms, second the lunar.
	zcosg, zsing := zcosgs, zsings
	zcosi, zsini := zcosis, zsinis
	zcosh, zsinh := cnodm, snodm
	cc := c1ss
	xnoi := 1.0 / nm

	var s1, s2, s3, s4, s5, s6, s7 float64
	var z1, z2, z3, z11, z12, z13, z21, z22, z23, z31, z32, z33 float64
	var ss1, ss2, ss3, ss4, ss5, ss6, ss7 float64
	var sz1, sz2, sz3, sz11, sz12, sz13, sz21, sz22, sz23, sz31, sz32, sz33 float64

	for lsflg := 1; lsflg <= 2; lsflg++ {
		a1 := zcosg*zcosh + zsing*zcosi*zsinh
		a3 := -zsing*zcosh + zcosg*zcosi*zsinh
		a7 := -zcosg*zsinh + zsing*zcosi*zcosh
		a8 := zsing * zsini
		a9 := zsing*zsinh + zcosg*zcosi*zcosh
		a10 := zcosg * zsini
		a2 := d.cosim*a7 + d.sinim*a8
		a4 := d.cosim*a9 + d.sinim*a10
		a5 := -d.sinim*a7 + d.cosim*a8
		a6 := -d.sinim*a9 + d.cosim*a10

		x1 := a1*cosomm + a2*sinomm
		x2 := a3*cosomm + a4*sinomm
		x3 := -a1*sinomm + a2*cosomm
		x4 := -a3*sinomm + a4*cosomm
		x5 := a5 * sinomm
		x6 := a6 * sinomm
		x7 := a5 * cosomm
		x8 := a6 * cosomm

		z31 = 12.0*x1*x1 - 3.0*x3*x3
		z32 = 24.0*x1*x2 - 6.0*x3*x4
		z33 = 12.0*x2*x2 - 3.0*x4*x4
		z1 = 3.0*(a1*a1+a2*a2) + z31*d.emsq
		z2 = 6.0*(a1*a3+a2*a4) + z32*d.emsq
		z3 = 3.0*(a3*a3+a4*a4) + z33*d.emsq
		z11 = -6.0*a1*a5 + d.emsq*(-24.0*x1*x7-6.0*x3*x5)
		z12 = -6.0*(a1*a6+a3*a5) + d.emsq*(-24.0*(x2*x7+x1*x8)-6.0*(x3*x6+x4*x5))
		z13 = -6.0*a3*a6 + d.emsq*(-24.0*x2*x8-6.0*x4*x6)
		z21 = 6.0*a2*a5 + d.emsq*(24.0*x1*x5-6.0*x3*x7)
		z22 = 6.0*(a4*a5+a2*a6) + d.emsq*(24.0*(x2*x5+x1*x6)-6.0*(x4*x7+x3*x8))
		z23 = 6.0*a4*a6 + d.emsq*(24.0*x2*x6-6.0*x4*x8)
		z1 = z1 + z1 + betasq*z31
		z2 = z2 + z2 + betasq*z32
		z3 = z3 + z3 + betasq*z33
		s3 = cc * xnoi
		s2 = -0.5 * s3 / rtemsq
		s4 = s3 * rtemsq
		s1 = -15.0 * em * s4
		s5 = x1*x3 + x2*x4
		s6 = x2*x3 + x1*x4
		s7 = x2*x4 - x1*x3

		if lsflg == 1 {
			ss1, ss2, ss3, ss4, ss5, ss6, ss7 = s1, s2, s3, s4, s5, s6, s7
			sz1, sz2, sz3 = z1, z2, z3
			sz11, sz12, sz13 = z11, z12, z13
			sz21, sz22, sz23 = z21, z22, z23
			sz31, sz32, sz33 = z31, z32, z33
			zcosg, zsing = zcosgl, zsingl
			zcosi, zsini = zcosil, zsinil
			zcosh = zcoshl*cnodm + zsinhl*snodm
			zsinh = snodm*zcoshl - cnodm*zsinhl
			cc = c1l
		}
	}

	lp := &ds.lp
	lp.zmol = math.Mod(4.7199672+0.22997150*day-gam, twoPi)
	lp.zmos = math.Mod(6.2565837+0.017201977*day, twoPi)

	// Solar terms.
	lp.se2 = 2.0 * ss1 * ss6
	lp.se3 = 2.0 * ss1 * ss7
	lp.si2 = 2.0 * ss2 * sz12
	lp.si3 = 2.0 * ss2 * (sz13 - sz11)
	lp.sl2 = -2.0 * ss3 * sz2
	lp.sl3 = -2.0 * ss3 * (sz3 - sz1)
	lp.sl4 = -2.0 * ss3 * (-21.0 - 9.0*d.emsq) * zes
	lp.sgh2 = 2.0 * ss4 * sz32
	lp.sgh3 = 2.0 * ss4 * (sz33 - sz31)
	lp.sgh4 = -18.0 * ss4 * zes
	lp.sh2 = -2.0 * ss2 * sz22
	lp.sh3 = -2.0 * ss2 * (sz23 - sz21)

	// Lunar terms.
	lp.ee2 = 2.0 * s1 * s6
	lp.e3 = 2.0 * s1 * s7
	lp.xi2 = 2.0 * s2 * z12
	lp.xi3 = 2.0 * s2 * (z13 - z11)
	lp.xl2 = -2.0 * s3 * z2
	lp.xl3 = -2.0 * s3 * (z3 - z1)
	lp.xl4 = -2.0 * s3 * (-21.0 - 9.0*d.emsq) * zel
	lp.xgh2 = 2.0 * s4 * z32
	lp.xgh3 = 2.0 * s4 * (z33 - z31)
	lp.xgh4 = -18.0 * s4 * zel
	lp.xh2 = -2.0 * s2 * z22
	lp.xh3 = -2.0 * s2 * (z23 - z21)

	d.s1, d.s2, d.s3, d.s4, d.s5 = s1, s2, s3, s4, s5
	d.ss1, d.ss2, d.ss3, d.ss4, d.ss5 = ss1, ss2, ss3, ss4, ss5
	d.sz1, d.sz3, d.sz11, d.sz13 = sz1, sz3, sz11, sz13
	d.sz21, d.sz23, d.sz31, d.sz33 = sz21, sz23, sz31, sz33
	d.z1, d.z3, d.z11, d.z13 = z1, z3, z11, z13
	d.z21, d.z23, d.z31, d.z33 = z21, z23, z31, z33
	return d
}

// dsinit derives the lunar-solar secular rates and, for 12 h and 24 h
// orbits, the resonance coefficients.
func (ds *deepSpace) dsinit(p *Propagator, d dscomTerms, eccsq, xpidot float64) {
	nm := p.no
	em := p.ecco
	inclm := p.inclo
	emsq := d.emsq

	res := &ds.res
	switch {
	case nm > 0.0034906585 && nm < 0.0052359877:
		res.kind = ResonanceSynchronous
	case nm >= 8.26e-3 && nm <= 9.24e-3 && em >= 0.5:
		res.kind = ResonanceHalfDay
	}

	// Solar secular terms.
	ses := d.ss1 * zns * d.ss5
	sis := d.ss2 * zns * (d.sz11 + d.sz13)
	sls := -zns * d.ss3 * (d.sz1 + d.sz3 - 14.0 - 6.0*emsq)
	sghs := d.ss4 * zns * (d.sz31 + d.sz33 - 6.0)
	shs := -zns * d.ss2 * (d.sz21 + d.sz23)
	if inclm < 5.2359877e-2 || inclm > math.Pi-5.2359877e-2 {
		shs = 0.0
	}
	if d.sinim != 0.0 {
		shs /= d.sinim
	}
	sgs := sghs - d.cosim*shs

	// Lunar secular terms.
	ds.dedt = ses + d.s1*znl*d.s5
	ds.didt = sis + d.s2*znl*(d.z11+d.z13)
	ds.dmdt = sls - znl*d.s3*(d.z1+d.z3-14.0-6.0*emsq)
	sghl := d.s4 * znl * (d.z31 + d.z33 - 6.0)
	shll := -znl * d.s2 * (d.z21 + d.z23)
	if inclm < 5.2359877e-2 || inclm > math.Pi-5.2359877e-2 {
		shll = 0.0
	}
	ds.domdt = sgs + sghl
	ds.dnodt = shs
	if d.sinim != 0.0 {
		ds.domdt -= d.cosim / d.sinim * shll
		ds.dnodt += shll / d.sinim
	}

	if res.kind == ResonanceNone {
		return
	}

	theta := math.Mod(p.gsto, twoPi)
	aonv := math.Pow(nm/xke, x2o3)
	sinim, cosim := d.sinim, d.cosim

	switch res.kind {
	case ResonanceHalfDay:
		cosisq := cosim * cosim
		em = p.ecco
		emsq = eccsq
		eoc := em * emsq

		g201 := -0.306 - (em-0.64)*0.440
		var g211, g310, g322, g410, g422, g520, g521, g532, g533 float64
		if em <= 0.65 {
			g211 = 3.616 - 13.2470*em + 16.2900*emsq
			g310 = -19.302 + 117.3900*em - 228.4190*emsq + 156.5910*eoc
			g322 = -18.9068 + 109.7927*em - 214.6334*emsq + 146.5816*eoc
			g410 = -41.122 + 242.6940*em - 471.0940*emsq + 313.9530*eoc
			g422 = -146.407 + 841.8800*em - 1629.014*emsq + 1083.4350*eoc
			g520 = -532.114 + 3017.977*em - 5740.032*emsq + 3708.2760*eoc
		} else {
			g211 = -72.099 + 331.819*em - 508.738*emsq + 266.724*eoc
			g310 = -346.844 + 1582.851*em - 2415.925*emsq + 1246.113*eoc
			g322 = -342.585 + 1554.908*em - 2366.899*emsq + 1215.972*eoc
			g410 = -1052.797 + 4758.686*em - 7193.992*emsq + 3651.957*eoc
			g422 = -3581.690 + 16178.110*em - 24462.770*emsq + 12422.520*eoc
			if em > 0.715 {
				g520 = -5149.66 + 29936.92*em - 54087.36*emsq + 31324.56*eoc
			} else {
				g520 = 1464.74 - 4664.75*em + 3763.64*emsq
			}
		}
		if em < 0.7 {
			g533 = -919.22770 + 4988.6100*em - 9064.7700*emsq + 5542.21*eoc
			g521 = -822.71072 + 4568.6173*em - 8491.4146*emsq + 5337.524*eoc
			g532 = -853.66600 + 4690.2500*em - 8624.7700*emsq + 5341.4*eoc
		} else {
			g533 = -37995.780 + 161616.52*em - 229838.20*emsq + 109377.94*eoc
			g521 = -51752.104 + 218913.95*em - 309468.16*emsq + 146349.42*eoc
			g532 = -40023.880 + 170470.89*em - 242699.48*emsq + 115605.82*eoc
		}

		sini2 := sinim * sinim
		f220 := 0.75 * (1.0 + 2.0*cosim + cosisq)
		f221 := 1.5 * sini2
		f321 := 1.875 * sinim * (1.0 - 2.0*cosim - 3.0*cosisq)
		f322 := -1.875 * sinim * (1.0 + 2.0*cosim - 3.0*cosisq)
		f441 := 35.0 * sini2 * f220
		f442 := 39.3750 * sini2 * sini2
		f522 := 9.84375 * sinim * (sini2*(1.0-2.0*cosim-5.0*cosisq) +
			0.33333333*(-2.0+4.0*cosim+6.0*cosisq))
		f523 := sinim * (4.92187512*sini2*(-2.0-4.0*cosim+10.0*cosisq) +
			6.56250012*(1.0+2.0*cosim-3.0*cosisq))
		f542 := 29.53125 * sinim * (2.0 - 8.0*cosim + cosisq*(-12.0+8.0*cosim+10.0*cosisq))
		f543 := 29.53125 * sinim * (-2.0 - 8.0*cosim + cosisq*(12.0+8.0*cosim-10.0*cosisq))

		xno2 := nm * nm
		ainv2 := aonv * aonv
		temp1 := 3.0 * xno2 * ainv2
		temp := temp1 * root22
		res.d2201 = temp * f220 * g201
		res.d2211 = temp * f221 * g211
		temp1 *= aonv
		temp = temp1 * root32
		res.d3210 = temp * f321 * g310
		res.d3222 = temp * f322 * g322
		temp1 *= aonv
		temp = 2.0 * temp1 * root44
		res.d4410 = temp * f441 * g410
		res.d4422 = temp * f442 * g422
		temp1 *= aonv
		temp = temp1 * root52
		res.d5220 = temp * f522 * g520
		res.d5232 = temp * f523 * g532
		temp = 2.0 * temp1 * root54
		res.d5421 = temp * f542 * g521
		res.d5433 = temp * f543 * g533

		res.xlamo = math.Mod(p.mo+p.nodeo+p.nodeo-theta-theta, twoPi)
		res.xfact = p.mdot + ds.dmdt + 2.0*(p.nodedot+ds.dnodt-rptim) - p.no

	case ResonanceSynchronous:
		g200 := 1.0 + emsq*(-2.5+0.8125*emsq)
		g310 := 1.0 + 2.0*emsq
		g300 := 1.0 + emsq*(-6.0+6.60937*emsq)
		f220 := 0.75 * (1.0 + cosim) * (1.0 + cosim)
		f311 := 0.9375*sinim*sinim*(1.0+3.0*cosim) - 0.75*(1.0+cosim)
		f330 := 1.0 + cosim
		f330 = 1.875 * f330 * f330 * f330
		del1 := 3.0 * nm * nm * aonv * aonv
		res.del2 = 2.0 * del1 * f220 * g200 * q22
		res.del3 = 3.0 * del1 * f330 * g300 * q33 * aonv
		res.del1 = del1 * f311 * g310 * q31 * aonv
		res.xlamo = math.Mod(p.mo+p.nodeo+p.argpo-theta, twoPi)
		res.xfact = p.mdot + xpidot - rptim + ds.dedt + ds.didt + ds.dmdt + ds.domdt + ds.dnodt - p.no
	}
}

// secularState is the set of mean elements after lunar-solar secular
// effects and resonance integration.
type secularState struct {
	em, argpm, inclm, mm, nodem float64
}

// secular applies lunar-solar secular rates and integrates resonance
// effects (dspace). It also returns the updated mean motion.
//
// The integrator restarts from epoch on every call and advances in fixed
// 720-minute steps toward t, so results depend only on t.
func (ds *deepSpace) secular(p *Propagator, t, em, argpm, inclm, mm, nodem float64) (secularState, float64) {
	s := secularState{
		em:    em + ds.dedt*t,
		inclm: inclm + ds.didt*t,
		argpm: argpm + ds.domdt*t,
		nodem: nodem + ds.dnodt*t,
		mm:    mm + ds.dmdt*t,
	}
	nm := p.no

	res := &ds.res
	if res.kind == ResonanceNone {
		return s, nm
	}

	theta := math.Mod(p.gsto+t*rptim, twoPi)
	delt := resonanceStep
	if t < 0 {
		delt = -resonanceStep
	}

	atime := 0.0
	xni := p.no
	xli := res.xlamo
	var xndt, xldot, xnddt, ft float64
	for {
		if res.kind == ResonanceSynchronous {
			xndt = res.del1*math.Sin(xli-fasx2) + res.del2*math.Sin(2.0*(xli-fasx4)) +
				res.del3*math.Sin(3.0*(xli-fasx6))
			xldot = xni + res.xfact
			xnddt = res.del1*math.Cos(xli-fasx2) + 2.0*res.del2*math.Cos(2.0*(xli-fasx4)) +
				3.0*res.del3*math.Cos(3.0*(xli-fasx6))
			xnddt *= xldot
		} else {
			xomi := p.argpo + p.argpdot*atime
			x2omi := xomi + xomi
			x2li := xli + xli
			xndt = res.d2201*math.Sin(x2omi+xli-g22) + res.d2211*math.Sin(xli-g22) +
				res.d3210*math.Sin(xomi+xli-g32) + res.d3222*math.Sin(-xomi+xli-g32) +
				res.d4410*math.Sin(x2omi+x2li-g44) + res.d4422*math.Sin(x2li-g44) +
				res.d5220*math.Sin(xomi+xli-g52) + res.d5232*math.Sin(-xomi+xli-g52) +
				res.d5421*math.Sin(xomi+x2li-g54) + res.d5433*math.Sin(-xomi+x2li-g54)
			xldot = xni + res.xfact
			xnddt = res.d2201*math.Cos(x2omi+xli-g22) + res.d2211*math.Cos(xli-g22) +
				res.d3210*math.Cos(xomi+xli-g32) + res.d3222*math.Cos(-xomi+xli-g32) +
				res.d5220*math.Cos(xomi+xli-g52) + res.d5232*math.Cos(-xomi+xli-g52) +
				2.0*(res.d4410*math.Cos(x2omi+x2li-g44)+res.d4422*math.Cos(x2li-g44)+
					res.d5421*math.Cos(xomi+x2li-g54)+res.d5433*math.Cos(-xomi+x2li-g54))
			xnddt *= xldot
		}

		if math.Abs(t-atime) < resonanceStep {
			ft = t - atime
			break
		}
		xli += xldot*delt + xndt*step2
		xni += xndt*delt + xnddt*step2
		atime += delt
	}

	nm = xni + xndt*ft + xnddt*ft*ft*0.5
	xl := xli + xldot*ft + xndt*ft*ft*0.5
	if res.kind == ResonanceSynchronous {
		s.mm = xl - s.nodem - s.argpm + theta
	} else {
		s.mm = xl - 2.0*s.nodem + 2.0*theta
	}
	return s, nm
}

// periodics applies the lunar-solar long-period periodics (dpper) to
// the elements at t minutes from epoch.
func (ds *deepSpace) periodics(t, ep, inclp, nodep, argpp, mp float64) (float64, float64, float64, float64, float64) {
	lp := &ds.lp

	zm := lp.zmos + zns*t
	zf := zm + 2.0*zes*math.Sin(zm)
	sinzf, coszf := math.Sincos(zf)
	f2 := 0.5*sinzf*sinzf - 0.25
	f3 := -0.5 * sinzf * coszf
	ses := lp.se2*f2 + lp.se3*f3
	sis := lp.si2*f2 + lp.si3*f3
	sls := lp.sl2*f2 + lp.sl3*f3 + lp.sl4*sinzf
	sghs := lp.sgh2*f2 + lp.sgh3*f3 + lp.sgh4*sinzf
	shs := lp.sh2*f2 + lp.sh3*f3

	zm = lp.zmol + znl*t
	zf = zm + 2.0*zel*math.Sin(zm)
	sinzf, coszf = math.Sincos(zf)
	f2 = 0.5*sinzf*sinzf - 0.25
	f3 = -0.5 * sinzf * coszf
	sel := lp.ee2*f2 + lp.e3*f3
	sil := lp.xi2*f2 + lp.xi3*f3
	sll := lp.xl2*f2 + lp.xl3*f3 + lp.xl4*sinzf
	sghl := lp.xgh2*f2 + lp.xgh3*f3 + lp.xgh4*sinzf
	shll := lp.xh2*f2 + lp.xh3*f3

	pe := ses + sel
	pinc := sis + sil
	pl := sls + sll
	pgh := sghs + sghl
	ph := shs + shll

	inclp += pinc
	ep += pe
	sinip, cosip := math.Sincos(inclp)

	if inclp >= 0.2 {
		ph /= sinip
		pgh -= cosip * ph
		argpp += pgh
		nodep += ph
		mp += pl
		return ep, inclp, nodep, argpp, mp
	}

	// Lyddane modification for low inclinations.
	sinop, cosop := math.Sincos(nodep)
	alfdp := sinip * sinop
	betdp := sinip * cosop
	dalf := ph*cosop + pinc*cosip*sinop
	dbet := -ph*sinop + pinc*cosip*cosop
	alfdp += dalf
	betdp += dbet
	nodep = math.Mod(nodep, twoPi)
	xls := mp + argpp + cosip*nodep
	dls := pl + pgh - pinc*nodep*sinip
	xls += dls
	xnoh := nodep
	nodep = math.Atan2(alfdp, betdp)
	if math.Abs(xnoh-nodep) > math.Pi {
		if nodep < xnoh {
			nodep += twoPi
		} else {
			nodep -= twoPi
		}
	}
	mp += pl
	argpp = xls - mp - cosip*nodep
	return ep, inclp, nodep, argpp, mp
}
