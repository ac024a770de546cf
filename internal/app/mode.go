package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

// ModeKind names a detection mode as chosen in the UI.
type ModeKind int

const (
	ModeLive ModeKind = iota
	ModeStatic
)

func (k ModeKind) String() string {
	switch k {
	case ModeLive:
		return "live"
	case ModeStatic:
		return "static"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

// ParseModeKind maps a UI mode name to its kind. "upload" and "camera" are
// both image sources of the static mode.
func ParseModeKind(s string) (ModeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "realtime", "real-time", "webrtc", "stream":
		return ModeLive, nil
	case "static", "image", "upload", "camera", "photo":
		return ModeStatic, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Mode is one of LiveMode or StaticImageMode.
type Mode interface {
	Kind() ModeKind
	isMode()
}

// LiveMode starts a live session from a browser offer.
type LiveMode struct {
	Offer webrtc.SessionDescription
}

func (LiveMode) Kind() ModeKind { return ModeLive }
func (LiveMode) isMode()        {}

// StaticImageMode detects signs in one uploaded or captured image.
type StaticImageMode struct {
	Image      []byte
	Confidence float64
}

func (StaticImageMode) Kind() ModeKind { return ModeStatic }
func (StaticImageMode) isMode()        {}

// Outcome is one of LiveOutcome or StaticOutcome.
type Outcome interface {
	isOutcome()
}

// LiveOutcome carries the answer for a started live session.
type LiveOutcome struct {
	SessionID string
	Answer    webrtc.SessionDescription
}

func (LiveOutcome) isOutcome() {}

// StaticOutcome carries a static detection result.
type StaticOutcome struct {
	Result *StaticResult
}

func (StaticOutcome) isOutcome() {}

// Run executes mode.
func (a *App) Run(ctx context.Context, mode Mode) (Outcome, error) {
	switch m := mode.(type) {
	case LiveMode:
		sess, answer, err := a.OpenLive(ctx, m.Offer)
		if err != nil {
			return nil, err
		}
		return LiveOutcome{SessionID: sess.ID(), Answer: answer}, nil
	case StaticImageMode:
		res, err := a.DetectImage(ctx, m.Image, m.Confidence)
		if err != nil {
			return nil, err
		}
		return StaticOutcome{Result: res}, nil
	default:
		return nil, fmt.Errorf("unsupported mode %T", mode)
	}
}
