package scheduler

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/mainloop"
	"github.com/MeKo-Tech/goscan/internal/testutil"
)

func TestSubmit_LiveSuccessDoesNotRearm(t *testing.T) {
	fx := newFixture(t, nil)
	fx.decoder.decodeFn = found("4006381333931")

	task := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	fx.settle(t)

	successes, failures, rearms := fx.sink.snapshot()
	assert.Equal(t, []string{"4006381333931"}, successes)
	assert.Zero(t, failures)
	assert.Zero(t, rearms)
	assert.Equal(t, OutcomeSuccess, task.Outcome())
	assert.False(t, fx.busy(t))
}

func TestSubmit_LiveMissRearmsSilently(t *testing.T) {
	fx := newFixture(t, nil)

	task := fx.submit(t, liveFrame(t, 8, 6, 90, image.Rectangle{}), false)
	fx.settle(t)

	successes, failures, rearms := fx.sink.snapshot()
	assert.Empty(t, successes)
	assert.Zero(t, failures)
	assert.Equal(t, 1, rearms)
	assert.Equal(t, OutcomeMiss, task.Outcome())
}

func TestSubmit_FileMissNotifiesFailureOnce(t *testing.T) {
	fx := newFixture(t, nil)

	task := fx.submit(t, loadedFileFrame(4, 4), true)
	fx.settle(t)

	successes, failures, rearms := fx.sink.snapshot()
	assert.Empty(t, successes)
	assert.Equal(t, 1, failures)
	assert.Zero(t, rearms)
	assert.Equal(t, OutcomeFailure, task.Outcome())
	assert.True(t, fx.decoder.lastView().IsImage())
}

func TestSubmit_CorruptStaticFile(t *testing.T) {
	dir := t.TempDir()
	loader := frame.NewFileLoader(geometry.Size{Width: 100, Height: 100}, 0, nil)
	fx := newFixture(t, loader)

	fx.submit(t, frame.NewStaticFile(filepath.Join(dir, "missing.png")), true)
	fx.settle(t)

	_, failures, rearms := fx.sink.snapshot()
	assert.Equal(t, 1, failures)
	assert.Zero(t, rearms)
	assert.Zero(t, fx.decoder.calls.Load(), "decoder never sees an unreadable file")
	assert.False(t, fx.busy(t), "no task remains active")
}

func TestSubmit_LoaderErrorIsAFailure(t *testing.T) {
	fx := newFixture(t, failingLoader{err: errLoad})

	fx.submit(t, frame.NewStaticFile("x.png"), true)
	fx.settle(t)

	_, failures, _ := fx.sink.snapshot()
	assert.Equal(t, 1, failures)
}

func TestSubmit_SupersededTaskNeverDelivers(t *testing.T) {
	fx := newFixture(t, nil)
	fx.decoder.decodeFn = func(_ context.Context, v barcode.View) (*barcode.Result, error) {
		return &barcode.Result{Text: v.Bounds().String()}, nil
	}

	entered := make(chan struct{})
	gate := make(chan struct{})
	fx.sched.yield = func(task *Task, stage string) {
		if task.Seq() == 1 && stage == "view" {
			close(entered)
			<-gate
		}
	}

	first := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rect(0, 0, 4, 4)), false)
	<-entered
	second := fx.submit(t, loadedFileFrame(2, 2), true)
	assert.True(t, first.Cancelled())
	close(gate)
	fx.settle(t)

	successes, failures, rearms := fx.sink.snapshot()
	assert.Equal(t, []string{image.Rect(0, 0, 2, 2).String()}, successes)
	assert.Zero(t, failures)
	assert.Zero(t, rearms)
	assert.Equal(t, OutcomeCancelled, first.Outcome())
	assert.Equal(t, OutcomeSuccess, second.Outcome())
	assert.Equal(t, int32(1), fx.decoder.calls.Load(), "cancelled body stops before decoding")
}

func TestSubmit_NeverOverlapsDecoder(t *testing.T) {
	fx := newFixture(t, nil)
	release := make(chan struct{})
	fx.decoder.decodeFn = func(ctx context.Context, _ barcode.View) (*barcode.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, barcode.ErrNotFound
	}

	var tasks []*Task
	for range 5 {
		tasks = append(tasks, fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false))
	}
	close(release)
	fx.settle(t)

	assert.False(t, fx.decoder.overlap.Load())
	for _, task := range tasks[:4] {
		assert.Equal(t, OutcomeCancelled, task.Outcome())
	}
	_, _, rearms := fx.sink.snapshot()
	assert.Equal(t, 1, rearms, "only the newest task re-arms")
}

func TestTeardown_NoCallbacksAfterClose(t *testing.T) {
	fx := newFixture(t, nil)
	guarded := NewGuardedSink(fx.sink)
	s, err := New(Config{Decoder: fx.decoder, Loop: fx.loop, Sink: guarded})
	require.NoError(t, err)
	fx.sched = s
	fx.decoder.decodeFn = found("late")

	entered := make(chan struct{})
	gate := make(chan struct{})
	s.yield = func(_ *Task, stage string) {
		if stage == "loaded" {
			close(entered)
			<-gate
		}
	}

	task := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	<-entered
	fx.onLoop(t, func() {
		s.Close()
		guarded.Close()
	})
	close(gate)
	fx.settle(t)

	successes, failures, rearms := fx.sink.snapshot()
	assert.Empty(t, successes)
	assert.Zero(t, failures)
	assert.Zero(t, rearms)
	assert.Equal(t, OutcomeCancelled, task.Outcome())

	next := liveFrame(t, 8, 6, 0, image.Rectangle{})
	fx.onLoop(t, func() { _, err = s.Submit(next, false) })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancel_DropsCompletion(t *testing.T) {
	fx := newFixture(t, nil)
	fx.decoder.decodeFn = found("x")
	gate := make(chan struct{})
	fx.sched.yield = func(_ *Task, stage string) {
		if stage == "loaded" {
			<-gate
		}
	}

	task := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	fx.onLoop(t, fx.sched.Cancel)
	assert.False(t, fx.busy(t))
	close(gate)
	fx.settle(t)

	successes, _, rearms := fx.sink.snapshot()
	assert.Empty(t, successes)
	assert.Zero(t, rearms)
	assert.Equal(t, OutcomeCancelled, task.Outcome())
}

func TestSubmit_EmptyRegionIsAMiss(t *testing.T) {
	fx := newFixture(t, nil)
	fx.decoder.decodeFn = found("unreachable")

	fx.submit(t, liveFrame(t, 8, 6, 0, image.Rect(20, 20, 30, 30)), false)
	fx.settle(t)

	successes, _, rearms := fx.sink.snapshot()
	assert.Empty(t, successes)
	assert.Equal(t, 1, rearms)
	assert.Zero(t, fx.decoder.calls.Load())
	assert.Equal(t, int32(1), fx.decoder.resets.Load())
}

func TestSubmit_DecoderPanicIsAMiss(t *testing.T) {
	fx := newFixture(t, nil)
	fx.decoder.decodeFn = func(context.Context, barcode.View) (*barcode.Result, error) {
		panic("reader exploded")
	}

	fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	fx.settle(t)

	_, _, rearms := fx.sink.snapshot()
	assert.Equal(t, 1, rearms)
	assert.Equal(t, int32(1), fx.decoder.resets.Load())
}

func TestSubmit_ResetsAfterEveryDecode(t *testing.T) {
	fx := newFixture(t, nil)
	for range 3 {
		fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
		fx.settle(t)
	}
	assert.Equal(t, int32(3), fx.decoder.calls.Load())
	assert.Equal(t, int32(3), fx.decoder.resets.Load())
}

func TestSubmit_RotatesBeforeCropping(t *testing.T) {
	fx := newFixture(t, nil)

	fx.submit(t, liveFrame(t, 8, 6, 90, image.Rect(1, 2, 5, 7)), false)
	fx.settle(t)

	// 8x6 rotated by 90 is 6x8, so the region fits untouched.
	assert.Equal(t, image.Rect(1, 2, 5, 7), fx.decoder.lastView().Bounds())
}

func TestSubmit_RejectsInvalidFrames(t *testing.T) {
	fx := newFixture(t, nil)

	bad := &frame.Frame{Kind: frame.KindLivePreview, Format: frame.FormatNV21,
		Data: make([]byte, 72), Width: 8, Height: 6, Rotation: 45}
	var err error
	fx.onLoop(t, func() { _, err = fx.sched.Submit(bad, false) })
	assert.ErrorIs(t, err, geometry.ErrInvalidRotation)

	fx.onLoop(t, func() { _, err = fx.sched.Submit(frame.NewStaticFile("a.png"), true) })
	assert.ErrorIs(t, err, ErrNoLoader)
	assert.False(t, fx.busy(t))
}

func TestSubmit_SequenceIncreases(t *testing.T) {
	fx := newFixture(t, nil)
	a := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	b := fx.submit(t, liveFrame(t, 8, 6, 0, image.Rectangle{}), false)
	fx.settle(t)
	assert.Less(t, a.Seq(), b.Seq())
	assert.Equal(t, frame.KindLivePreview, b.Kind())
	assert.False(t, b.NotifyOnFailure())
}

func TestScheduler_DecodesRotatedPreview(t *testing.T) {
	loop := mainloop.Start(context.Background(), nil)
	defer loop.Stop()

	reader, err := barcode.NewReader(barcode.Options{Formats: barcode.QRCodeFormats}, nil)
	require.NoError(t, err)
	rec := &recorder{}
	s, err := New(Config{Decoder: reader, Loop: loop, Sink: rec})
	require.NoError(t, err)
	fx := &fixture{loop: loop, sched: s, sink: rec}

	upright := testutil.Place(testutil.QRCodeImage(t, "rotated preview", 160), 240, 320, image.Pt(40, 80))
	data, w, h := testutil.SensorFrame(upright, 90)
	f, err := frame.NewLivePreview(data, w, h, 90, image.Rect(20, 60, 220, 260))
	require.NoError(t, err)

	fx.submit(t, f, false)
	fx.settle(t)

	successes, _, rearms := rec.snapshot()
	assert.Equal(t, []string{"rotated preview"}, successes)
	assert.Zero(t, rearms)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
