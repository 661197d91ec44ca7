package pushpull

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pushpull/spatialmath"
)

func at(x, y, z float64) spatialmath.Matrix {
	return spatialmath.NewTranslationMatrix(r3.Vector{X: x, Y: y, Z: z})
}

func TestScenarios(t *testing.T) {
	cfg := Config{Distance: 5, Pull: true, StartFrame: 1}
	in := Inputs{CurrentTime: 1, TargetWorldMatrix: at(10, 0, 0), ConstraintParentMatrix: spatialmath.Identity()}

	t.Run("pull", func(t *testing.T) {
		res, err := Evaluate(State{}, cfg, in, Output{})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseProjected)
		test.That(t, res.Output.ConstraintTranslate, test.ShouldResemble, r3.Vector{X: 5})
		test.That(t, res.State.LastPosition, test.ShouldResemble, r3.Vector{X: 5})
	})

	t.Run("before start", func(t *testing.T) {
		early := in
		early.CurrentTime = 0
		res, err := Evaluate(State{LastPosition: r3.Vector{X: 4, Y: 4}}, cfg, early, Output{ConstraintTranslate: r3.Vector{X: 4, Y: 4}})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseInert)
		test.That(t, res.Output.ConstraintTranslate, test.ShouldResemble, r3.Vector{})
		test.That(t, res.State.LastPosition, test.ShouldResemble, r3.Vector{})
	})

	t.Run("push", func(t *testing.T) {
		push := Config{Distance: 5, Push: true, StartFrame: 1}
		state := State{LastPosition: r3.Vector{X: 1, Y: 2, Z: 2}}
		res, err := Evaluate(state, push, Inputs{
			CurrentTime:            3,
			TargetWorldMatrix:      spatialmath.Identity(),
			ConstraintParentMatrix: spatialmath.Identity(),
		}, Output{})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseProjected)
		got := res.Output.ConstraintTranslate
		test.That(t, got.Norm(), test.ShouldAlmostEqual, 5, 1e-12)
		// same direction as before
		test.That(t, got.Normalize().Dot(state.LastPosition.Normalize()), test.ShouldAlmostEqual, 1, 1e-12)
		test.That(t, spatialmath.R3VectorAlmostEqual(got, r3.Vector{X: 5.0 / 3, Y: 10.0 / 3, Z: 10.0 / 3}, 1e-12), test.ShouldBeTrue)
	})

	t.Run("pull ignores compression", func(t *testing.T) {
		res, err := Evaluate(State{LastPosition: r3.Vector{X: 8}}, cfg, in, Output{ConstraintTranslate: r3.Vector{X: 8}})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseWithinBand)
		test.That(t, res.Output.ConstraintTranslate, test.ShouldResemble, r3.Vector{X: 8})
	})
}

func TestInertBeforeStart(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := Config{Distance: 2, StartFrame: 10, StartPosition: r3.Vector{X: 1, Y: -1, Z: 3}, Push: true, Pull: true}
	for i := 0; i < 100; i++ {
		in := Inputs{
			CurrentTime:            rng.Float64()*20 - 10.0001,
			TargetWorldMatrix:      randomMatrix(rng),
			ConstraintParentMatrix: randomMatrix(rng),
		}
		res, err := Evaluate(State{LastPosition: randomVector(rng)}, cfg, in, Output{ConstraintTranslate: randomVector(rng)})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseInert)
		test.That(t, res.Output.ConstraintTranslate, test.ShouldResemble, cfg.StartPosition)
		test.That(t, res.State.LastPosition, test.ShouldResemble, cfg.StartPosition)
	}
}

func TestDisabledPassThrough(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cfg := Config{Distance: 2, StartFrame: 0}
	for i := 0; i < 100; i++ {
		prev := Output{ConstraintTranslate: randomVector(rng)}
		state := State{LastPosition: randomVector(rng)}
		res, err := Evaluate(state, cfg, Inputs{
			CurrentTime:            rng.Float64() * 100,
			TargetWorldMatrix:      randomMatrix(rng),
			ConstraintParentMatrix: randomMatrix(rng),
		}, prev)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseDisabled)
		test.That(t, res.Output, test.ShouldResemble, prev)
		test.That(t, res.State, test.ShouldResemble, state)
	}
}

func TestBandIsClosed(t *testing.T) {
	in := Inputs{CurrentTime: 1, TargetWorldMatrix: at(1, 0, 0), ConstraintParentMatrix: spatialmath.Identity()}
	state := State{LastPosition: r3.Vector{X: 4}}
	prev := Output{ConstraintTranslate: r3.Vector{X: 7}}
	for _, flags := range [][2]bool{{true, true}, {true, false}, {false, true}} {
		cfg := Config{Distance: 3, StartFrame: 1, Push: flags[0], Pull: flags[1]}
		res, err := Evaluate(state, cfg, in, prev)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Phase, test.ShouldEqual, PhaseWithinBand)
		test.That(t, res.Output, test.ShouldResemble, prev)
		test.That(t, res.State, test.ShouldResemble, state)
	}
}

func TestProjectionDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	projected := 0
	for i := 0; i < 500; i++ {
		cfg := Config{Distance: rng.Float64() * 10, StartFrame: 0, Push: rng.Intn(2) == 0, Pull: true}
		parent := randomMatrix(rng)
		target := randomMatrix(rng)
		res, err := Evaluate(State{LastPosition: randomVector(rng)}, cfg, Inputs{
			CurrentTime:            1,
			TargetWorldMatrix:      target,
			ConstraintParentMatrix: parent,
		}, Output{})
		test.That(t, err, test.ShouldBeNil)
		if res.Phase != PhaseProjected {
			continue
		}
		projected++
		world := parent.TransformPoint(res.State.LastPosition)
		dist := world.Sub(target.Translation()).Norm()
		test.That(t, dist, test.ShouldAlmostEqual, cfg.Distance, 1e-9*math.Max(1, cfg.Distance))
		test.That(t, res.Output.ConstraintTranslate, test.ShouldResemble, res.State.LastPosition)
	}
	test.That(t, projected, test.ShouldBeGreaterThan, 100)
}

func TestRoundTripThroughParentSpace(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 200; i++ {
		parent := randomMatrix(rng)
		inv, err := parent.Inverse()
		test.That(t, err, test.ShouldBeNil)
		p := randomVector(rng)
		back := inv.TransformPoint(parent.TransformPoint(p))
		test.That(t, spatialmath.R3VectorAlmostEqual(back, p, 1e-9), test.ShouldBeTrue)
	}
}

func TestIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		cfg := Config{Distance: 1 + rng.Float64()*5, Push: true, Pull: true}
		in := Inputs{CurrentTime: 2, TargetWorldMatrix: randomMatrix(rng), ConstraintParentMatrix: randomMatrix(rng)}
		first, err := Evaluate(State{LastPosition: randomVector(rng)}, cfg, in, Output{})
		test.That(t, err, test.ShouldBeNil)
		second, err := Evaluate(first.State, cfg, in, first.Output)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, spatialmath.R3VectorAlmostEqual(second.Output.ConstraintTranslate, first.Output.ConstraintTranslate, 1e-9),
			test.ShouldBeTrue)
	}
}

func TestFeedbackAcrossFrames(t *testing.T) {
	// target walks away along +X, the point trails 2 units behind it
	cfg := Config{Distance: 2, StartFrame: 1, Pull: true}
	state := State{}
	var out Output
	for frame := 1; frame <= 10; frame++ {
		res, err := Evaluate(state, cfg, Inputs{
			CurrentTime:            float64(frame),
			TargetWorldMatrix:      at(float64(frame), 1, 0),
			ConstraintParentMatrix: spatialmath.Identity(),
		}, out)
		test.That(t, err, test.ShouldBeNil)
		state, out = res.State, res.Output
	}
	test.That(t, out.ConstraintTranslate.Sub(r3.Vector{X: 10, Y: 1}).Norm(), test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, out.ConstraintTranslate.X, test.ShouldBeLessThan, 10)

	// and it stays put when the target comes back inside the sphere
	res, err := Evaluate(state, cfg, Inputs{
		CurrentTime:            11,
		TargetWorldMatrix:      at(9.5, 1, 0),
		ConstraintParentMatrix: spatialmath.Identity(),
	}, out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Phase, test.ShouldEqual, PhaseWithinBand)
	test.That(t, res.Output, test.ShouldResemble, out)
}

func TestParentSpace(t *testing.T) {
	// parent is moved to (0,10,0) and rotated 90 degrees about Z
	parent := spatialmath.NewMatrixFromTRS(r3.Vector{Y: 10}, r3.Vector{Z: 90}, r3.Vector{X: 1, Y: 1, Z: 1})
	cfg := Config{Distance: 1, Pull: true}
	res, err := Evaluate(State{}, cfg, Inputs{
		CurrentTime:            0,
		TargetWorldMatrix:      at(0, 7, 0),
		ConstraintParentMatrix: parent,
	}, Output{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Phase, test.ShouldEqual, PhaseProjected)
	// world (0,8,0) is parent-local (-2,0,0)
	test.That(t, spatialmath.R3VectorAlmostEqual(res.Output.ConstraintTranslate, r3.Vector{X: -2}, 1e-9), test.ShouldBeTrue)
}

func TestDegenerate(t *testing.T) {
	cfg := Config{Distance: 2, Push: true, Pull: true}
	prev := Output{ConstraintTranslate: r3.Vector{X: 3, Y: 3, Z: 3}}
	state := State{LastPosition: r3.Vector{X: 3, Y: 3, Z: 3}}
	res, err := Evaluate(state, cfg, Inputs{
		TargetWorldMatrix:      at(3, 3, 3),
		ConstraintParentMatrix: spatialmath.Identity(),
	}, prev)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Phase, test.ShouldEqual, PhaseDegenerate)
	test.That(t, res.Output, test.ShouldResemble, prev)
	test.That(t, res.State, test.ShouldResemble, state)

	// zero distance with the point on the target is simply within the band
	cfg.Distance = 0
	res, err = Evaluate(state, cfg, Inputs{
		TargetWorldMatrix:      at(3, 3, 3),
		ConstraintParentMatrix: spatialmath.Identity(),
	}, prev)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Phase, test.ShouldEqual, PhaseWithinBand)
}

func TestSingularParent(t *testing.T) {
	flat := spatialmath.NewMatrixFromTRS(r3.Vector{}, r3.Vector{}, r3.Vector{X: 1, Y: 1})
	state := State{LastPosition: r3.Vector{X: 10}}
	prev := Output{ConstraintTranslate: r3.Vector{X: 10}}
	res, err := Evaluate(state, Config{Distance: 1, Pull: true}, Inputs{
		TargetWorldMatrix:      spatialmath.Identity(),
		ConstraintParentMatrix: flat,
	}, prev)
	test.That(t, errors.Is(err, spatialmath.ErrSingularMatrix), test.ShouldBeTrue)
	test.That(t, res.State, test.ShouldResemble, state)
	test.That(t, res.Output, test.ShouldResemble, prev)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, Config{Distance: 1}.Validate(), test.ShouldBeNil)
	test.That(t, Config{}.Validate(), test.ShouldBeNil)
	for _, bad := range []Config{
		{Distance: -1},
		{Distance: math.NaN()},
		{Distance: math.Inf(1)},
		{StartFrame: math.NaN()},
		{StartPosition: r3.Vector{Y: math.Inf(-1)}},
	} {
		test.That(t, bad.Validate(), test.ShouldNotBeNil)
	}
}

func TestPhaseString(t *testing.T) {
	test.That(t, PhaseProjected.String(), test.ShouldEqual, "projected")
	test.That(t, Phase(99).String(), test.ShouldEqual, "unknown")
}

func randomVector(rng *rand.Rand) r3.Vector {
	return r3.Vector{X: rng.Float64()*20 - 10, Y: rng.Float64()*20 - 10, Z: rng.Float64()*20 - 10}
}

func randomMatrix(rng *rand.Rand) spatialmath.Matrix {
	scale := func() float64 { return 0.5 + rng.Float64()*2 }
	return spatialmath.NewMatrixFromTRS(
		randomVector(rng),
		r3.Vector{X: rng.Float64() * 360, Y: rng.Float64() * 360, Z: rng.Float64() * 360},
		r3.Vector{X: scale(), Y: scale(), Z: scale()},
	)
}
