package track

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/libgoscrap/pkg/depacketizer"
)

var _ webrtc.TrackLocal = (*ScreenTrack)(nil)

func TestNewScreenTrack(t *testing.T) {
	if _, err := NewScreenTrack(ScreenTrackConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty ID: err = %v, want ErrInvalidConfig", err)
	}

	st, err := NewScreenTrack(ScreenTrackConfig{ID: "screen"})
	if err != nil {
		t.Fatalf("NewScreenTrack: %v", err)
	}
	if st.ID() != "screen" || st.StreamID() != "screen" || st.RID() != "" {
		t.Errorf("ids = %q %q %q", st.ID(), st.StreamID(), st.RID())
	}
	if st.Kind() != webrtc.RTPCodecTypeVideo {
		t.Errorf("kind = %v", st.Kind())
	}
}

func TestScreenTrack_WriteBeforeBind(t *testing.T) {
	st, _ := NewScreenTrack(ScreenTrackConfig{ID: "screen"})
	if err := st.WriteFrame([]byte{1, 2, 3, 4}, 0); !errors.Is(err, ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
	_ = st.Close()
	if err := st.WriteFrame([]byte{1, 2, 3, 4}, 0); !errors.Is(err, ErrTrackClosed) {
		t.Errorf("err = %v, want ErrTrackClosed", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSelectCodec(t *testing.T) {
	codecs := []webrtc.RTPCodecParameters{
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, PayloadType: 96},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/X-SCRAP-RAW", ClockRate: 90000}, PayloadType: 111},
	}
	c, ok := selectCodec(codecs)
	if !ok || c.PayloadType != 111 {
		t.Errorf("selectCodec = %+v, %v", c, ok)
	}
	if _, ok := selectCodec(codecs[:1]); ok {
		t.Error("VP8 alone should not match")
	}
}

func TestRegisterCodec(t *testing.T) {
	m := &webrtc.MediaEngine{}
	if err := RegisterCodec(m, 100); err != nil {
		t.Fatalf("RegisterCodec: %v", err)
	}
}

type stubSource struct {
	polls int
	pix   []byte
}

func (s *stubSource) Frame() ([]byte, bool, error) {
	s.polls++
	if s.polls == 1 {
		return nil, true, nil
	}
	return s.pix, false, nil
}

func (s *stubSource) ReleaseFrame() {}

func TestPump_UnboundDropsFrames(t *testing.T) {
	st, _ := NewScreenTrack(ScreenTrackConfig{ID: "screen"})
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	src := &stubSource{pix: make([]byte, 64)}
	if err := st.Pump(ctx, src, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pump err = %v, want DeadlineExceeded", err)
	}
	if src.polls < 2 {
		t.Errorf("polls = %d, want the source polled repeatedly", src.polls)
	}
}

func newLoopbackAPI(t *testing.T) *webrtc.API {
	t.Helper()
	m := &webrtc.MediaEngine{}
	if err := RegisterCodec(m, 100); err != nil {
		t.Fatalf("RegisterCodec: %v", err)
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
}

func negotiate(t *testing.T, offerer, answerer *webrtc.PeerConnection) {
	t.Helper()

	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(offerer)
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gathered
	if err := answerer.SetRemoteDescription(*offerer.LocalDescription()); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	answer, err := answerer.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	gathered = webrtc.GatheringCompletePromise(answerer)
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gathered
	if err := offerer.SetRemoteDescription(*answerer.LocalDescription()); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
}

func TestScreenTrack_PionLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	api := newLoopbackAPI(t)
	sender, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer sender.Close()
	receiver, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer receiver.Close()

	st, _ := NewScreenTrack(ScreenTrackConfig{ID: "screen", MTU: 1000})
	defer st.Close()
	if _, err := sender.AddTrack(st); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	want := make([]byte, 32*32*4)
	for i := range want {
		want[i] = byte(i * 7)
	}

	got := make(chan []byte, 1)
	receiver.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		d := depacketizer.New(0)
		defer d.Close()
		dst := make([]byte, len(want))
		for {
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				return
			}
			b, err := pkt.Marshal()
			if err != nil {
				return
			}
			if d.Push(b) != nil {
				continue
			}
			if info, err := d.PopInto(dst); err == nil {
				select {
				case got <- append([]byte(nil), dst[:info.Size]...):
				default:
				}
				return
			}
		}
	})

	connected := make(chan struct{})
	var once sync.Once
	sender.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateConnected {
			once.Do(func() { close(connected) })
		}
	})

	negotiate(t, sender, receiver)

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Skip("peer connection did not connect over loopback")
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(10 * time.Second)
	for ts := uint32(0); ; ts += 3000 {
		select {
		case frame := <-got:
			if !bytes.Equal(frame, want) {
				t.Fatalf("received frame of %d bytes differs from the one sent", len(frame))
			}
			return
		case <-timeout:
			t.Fatal("no frame received")
		case <-ticker.C:
			if err := st.WriteFrame(want, ts); err != nil && !errors.Is(err, ErrNotBound) {
				t.Fatalf("WriteFrame: %v", err)
			}
		}
	}
}
