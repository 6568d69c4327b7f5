package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unsafe"

	"github.com/thesyncim/libgoscrap/internal/capture"
	"github.com/thesyncim/libgoscrap/internal/testutil"
)

// useBackend installs b for the duration of the test and returns the number
// of live C allocations to compare against at the end.
func useBackend(t *testing.T, b capture.Backend) int64 {
	t.Helper()
	install(b)
	t.Cleanup(func() { install(capture.Unavailable(errors.New("test finished"))) })
	return liveAllocs.Load()
}

func assertNoLeaks(t *testing.T, base int64) {
	t.Helper()
	if got := liveAllocs.Load(); got != base {
		t.Errorf("live C allocations = %d, want %d", got, base)
	}
	if s := current().Stats(); s.Displays != 0 || s.Capturers != 0 {
		t.Errorf("live handles = %+v, want none", s)
	}
}

func TestDisplayList(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend())

	res := display_list()
	if res.err != nil {
		t.Fatalf("display_list: %s", errorText(res.err))
	}
	if res.len != 2 {
		t.Fatalf("len = %d, want 2", res.len)
	}

	cells := displayCells(res.list, int(res.len))
	wantWidths := []int{1920, 1280}
	for i, cell := range cells {
		if got := int(display_width(cell)); got != wantWidths[i] {
			t.Errorf("display %d width = %d, want %d", i, got, wantWidths[i])
		}
	}
	if got := int(display_height(cells[1])); got != 720 {
		t.Errorf("display 1 height = %d, want 720", got)
	}

	for _, cell := range cells {
		display_free(cell)
	}
	display_list_free(res.list)
	assertNoLeaks(t, base)
}

func TestDisplayList_Empty(t *testing.T) {
	base := useBackend(t, testutil.NewFakeBackend())

	res := display_list()
	if res.err != nil {
		t.Fatalf("display_list: %s", errorText(res.err))
	}
	if res.list == nil {
		t.Error("empty enumeration must still return a list")
	}
	if res.len != 0 {
		t.Errorf("len = %d, want 0", res.len)
	}
	display_list_free(res.list)
	assertNoLeaks(t, base)
}

func TestDisplayList_Error(t *testing.T) {
	base := useBackend(t, testutil.NewFakeBackend().FailList(errors.New("cannot open display :0")))

	res := display_list()
	if res.list != nil {
		t.Error("failed enumeration must not return a list")
	}
	if got := errorText(res.err); got != "cannot open display :0" {
		t.Errorf("err = %q, want backend text", got)
	}
	error_free(res.err)
	assertNoLeaks(t, base)
}

func TestGetDisplay(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend())

	res := get_display(1)
	if res.err != nil {
		t.Fatalf("get_display(1): %s", errorText(res.err))
	}
	if got := int(display_width(res.display)); got != 1280 {
		t.Errorf("width = %d, want 1280", got)
	}
	display_free(res.display)

	past, negative, huge := get_display(2), get_display(-1), get_display(1<<20)
	cases := []struct {
		index   int
		display bool
		err     string
	}{
		{2, past.display != nil, errorText(past.err)},
		{-1, negative.display != nil, errorText(negative.err)},
		{1 << 20, huge.display != nil, errorText(huge.err)},
	}
	for _, tc := range cases {
		if tc.display {
			t.Errorf("get_display(%d) returned a display", tc.index)
		}
		if tc.err != "No display found in this index" {
			t.Errorf("get_display(%d) err = %q", tc.index, tc.err)
		}
	}
	error_free(past.err)
	error_free(negative.err)
	error_free(huge.err)
	assertNoLeaks(t, base)
}

func TestErrorsAreLoggedWithClass(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend().FailFrames(errors.New("display reconfigured")))

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	res := get_display(7)
	error_free(res.err)
	if !strings.Contains(buf.String(), "class=domain") {
		t.Errorf("out of range index not logged as domain error:\n%s", buf.String())
	}

	buf.Reset()
	d := display_primary()
	c := capturer_new(d.display)
	f := capturer_frame(c.capturer)
	error_free(f.err)
	if !strings.Contains(buf.String(), "class=session") {
		t.Errorf("frame failure not logged as session error:\n%s", buf.String())
	}

	capturer_free(c.capturer)
	assertNoLeaks(t, base)
}

func TestDisplayPrimary_Error(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend().FailPrimary(errors.New("no primary output")))

	res := display_primary()
	if res.display != nil {
		t.Error("failed lookup must not return a display")
	}
	if got := errorText(res.err); got != "no primary output" {
		t.Errorf("err = %q", got)
	}
	error_free(res.err)
	assertNoLeaks(t, base)
}

func TestCapturerFrame(t *testing.T) {
	fake := testutil.NewDualDisplayBackend().BlockFirst(1)
	base := useBackend(t, fake)

	d := display_primary()
	if d.err != nil {
		t.Fatalf("display_primary: %s", errorText(d.err))
	}
	c := capturer_new(d.display)
	if c.err != nil {
		t.Fatalf("capturer_new: %s", errorText(c.err))
	}
	if int(capturer_width(c.capturer)) != 1920 || int(capturer_height(c.capturer)) != 1080 {
		t.Errorf("capturer size = %dx%d, want 1920x1080",
			capturer_width(c.capturer), capturer_height(c.capturer))
	}

	f := capturer_frame(c.capturer)
	if f.would_block != 1 || f.data != nil || f.err != nil {
		t.Fatalf("first poll = %+v, want would-block only", f)
	}

	f = capturer_frame(c.capturer)
	if f.err != nil {
		t.Fatalf("capturer_frame: %s", errorText(f.err))
	}
	if f.would_block != 0 {
		t.Error("frame must not be flagged would-block")
	}
	if want := 1920 * 1080 * 4; int(f.len) != want {
		t.Fatalf("len = %d, want %d", f.len, want)
	}
	first := f.data
	if pix := frameBytes(f); pix[0] != 1 || pix[len(pix)-1] != 1 {
		t.Errorf("frame 1 content = %d..%d, want 1", pix[0], pix[len(pix)-1])
	}

	f = capturer_frame(c.capturer)
	if f.data != first {
		t.Error("staging buffer should be reused across frames")
	}
	if pix := frameBytes(f); pix[0] != 2 {
		t.Errorf("frame 2 content = %d, want 2", pix[0])
	}

	capturer_frame_release(c.capturer)
	capturer_free(c.capturer)

	caps := fake.Capturers()
	if len(caps) != 1 || !caps[0].Closed() {
		t.Error("capturer_free should close the session")
	}
	if caps[0].Releases() != 1 {
		t.Errorf("releases = %d, want 1", caps[0].Releases())
	}
	assertNoLeaks(t, base)
}

func TestCapturerFrame_Foreign(t *testing.T) {
	fake := testutil.NewFakeBackend(testutil.Size{Width: 4, Height: 2}).WithForeignBuffers()
	base := useBackend(t, fake)

	d := display_primary()
	c := capturer_new(d.display)
	if c.err != nil {
		t.Fatalf("capturer_new: %s", errorText(c.err))
	}

	f := capturer_frame(c.capturer)
	if f.err != nil {
		t.Fatalf("capturer_frame: %s", errorText(f.err))
	}
	last := fake.Capturers()[0].LastFrame()
	if unsafe.Pointer(f.data) != unsafe.Pointer(&last[0]) {
		t.Error("foreign frames should be passed through without staging")
	}

	capturer_free(c.capturer)
	assertNoLeaks(t, base)
}

func TestCapturerFrame_Error(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend().FailFrames(errors.New("display reconfigured")))

	d := display_primary()
	c := capturer_new(d.display)

	f := capturer_frame(c.capturer)
	if f.data != nil || f.would_block != 0 {
		t.Errorf("failed poll = %+v, want error only", f)
	}
	if got := errorText(f.err); got != "display reconfigured" {
		t.Errorf("err = %q", got)
	}
	error_free(f.err)

	capturer_free(c.capturer)
	assertNoLeaks(t, base)
}

func TestCapturerNew_ConsumesDisplayOnFailure(t *testing.T) {
	fake := testutil.NewDualDisplayBackend().FailOpen(errors.New("permission denied"))
	base := useBackend(t, fake)

	d := display_primary()
	c := capturer_new(d.display)
	if c.capturer != nil {
		t.Error("failed open must not return a capturer")
	}
	if got := errorText(c.err); got != "permission denied" {
		t.Errorf("err = %q", got)
	}
	error_free(c.err)

	for _, fd := range fake.AllDisplays() {
		if fd.Closed() != 1 {
			t.Errorf("display %d closed %d times, want 1", fd.ID, fd.Closed())
		}
	}
	assertNoLeaks(t, base)
}

func TestInvalidHandle(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend())

	cell := newDisplayCell(0)
	if got := display_width(cell); got != 0 {
		t.Errorf("width of null handle = %d, want 0", got)
	}
	cFree(unsafe.Pointer(cell))

	if got := display_height(nil); got != 0 {
		t.Errorf("height of nil cell = %d, want 0", got)
	}
	display_free(nil)
	capturer_free(nil)
	error_free(nil)

	f := capturer_frame(nil)
	if f.err == nil {
		t.Fatal("frame on nil capturer should fail")
	}
	error_free(f.err)
	assertNoLeaks(t, base)
}

type panicBackend struct {
	*testutil.FakeBackend
}

func (panicBackend) Displays() ([]capture.Display, error) {
	panic("enumeration exploded")
}

func TestPanicIsReportedAsError(t *testing.T) {
	base := useBackend(t, panicBackend{testutil.NewDualDisplayBackend()})

	res := display_list()
	if res.list != nil {
		t.Error("panicking enumeration must not return a list")
	}
	got := errorText(res.err)
	if !strings.Contains(got, "internal panic") || !strings.Contains(got, "enumeration exploded") {
		t.Errorf("err = %q", got)
	}
	error_free(res.err)
	assertNoLeaks(t, base)
}

func TestLifecycle_NoLeaks(t *testing.T) {
	base := useBackend(t, testutil.NewDualDisplayBackend())

	// Create and destroy many times - verifies no handle or allocation leak
	for i := 0; i < 50; i++ {
		list := display_list()
		cells := displayCells(list.list, int(list.len))
		display_free(cells[0])
		c := capturer_new(cells[1])
		display_list_free(list.list)

		f := capturer_frame(c.capturer)
		if f.err != nil {
			t.Fatalf("iteration %d: %s", i, errorText(f.err))
		}
		capturer_free(c.capturer)
	}
	assertNoLeaks(t, base)
}
