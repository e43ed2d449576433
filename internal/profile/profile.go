package profile

import (
	"fmt"
	"time"
)

// Axis — одна из четырёх дихотомий личности.
type Axis string

const (
	AxisEI Axis = "ei"
	AxisSN Axis = "sn"
	AxisTF Axis = "tf"
	AxisJP Axis = "jp"
)

// Anchor is a retained piece of evidence behind the current estimate.
type Anchor struct {
	EventID int64     `json:"event_id"`
	Axis    Axis      `json:"axis"`
	Value   float64   `json:"value"`
	At      time.Time `json:"at"`
}

// Profile holds the four axis scores and the confidence of the estimate.
// All numeric fields stay within [0,1] after every update.
type Profile struct {
	UserID     int64     `json:"user_id"`
	EI         float64   `json:"ei"`
	SN         float64   `json:"sn"`
	TF         float64   `json:"tf"`
	JP         float64   `json:"jp"`
	Confidence float64   `json:"confidence"`
	MBTIType   string    `json:"mbti_type,omitempty"`
	Anchors    []Anchor  `json:"anchors,omitempty"`
	State      string    `json:"state,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewDefault — нейтральная стартовая точка с низкой уверенностью.
func NewDefault(userID int64) Profile {
	return Profile{
		UserID:     userID,
		EI:         0.5,
		SN:         0.5,
		TF:         0.5,
		JP:         0.5,
		Confidence: 0.3,
	}
}

func (p *Profile) axis(a Axis) *float64 {
	switch a {
	case AxisEI:
		return &p.EI
	case AxisSN:
		return &p.SN
	case AxisTF:
		return &p.TF
	case AxisJP:
		return &p.JP
	}
	return nil
}

// Signal is one observed cue for a single axis: where the evidence points
// (Value in [0,1]) and how strong it is (Weight in (0,1]).
type Signal struct {
	Axis   Axis    `json:"axis"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// ValidationError rejects a single malformed signal without discarding the
// rest of the observation.
type ValidationError struct {
	Axis   Axis
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid axis signal %q: %s", e.Axis, e.Reason)
}

// Updater applies axis signals to a profile via exponential smoothing with a
// confidence-coupled step size.
type Updater struct {
	ConfidenceStep   float64 // прирост уверенности на одно наблюдение (доля веса)
	PublishThreshold float64 // минимальная уверенность для публикации mbti_type
	AnchorCap        int
	TiePoles         string // буква каждой оси при значении ровно 0.5
}

func NewUpdater(confidenceStep, publishThreshold float64, anchorCap int) Updater {
	return Updater{
		ConfidenceStep:   confidenceStep,
		PublishThreshold: publishThreshold,
		AnchorCap:        anchorCap,
		TiePoles:         "ENTJ",
	}
}

// DefaultUpdater — 5% прироста уверенности, порог публикации 0.6, до 50 якорей.
func DefaultUpdater() Updater { return NewUpdater(0.05, 0.6, 50) }

// Apply folds the signals into p in order. A malformed signal yields a
// *ValidationError in the returned slice and is skipped; valid signals in the
// same batch still apply. Confidence never decreases.
func (u Updater) Apply(p *Profile, eventID int64, signals []Signal, now time.Time) []error {
	var errs []error
	for _, s := range signals {
		target := p.axis(s.Axis)
		if target == nil {
			errs = append(errs, &ValidationError{Axis: s.Axis, Reason: "unknown axis"})
			continue
		}
		if s.Value < 0 || s.Value > 1 {
			errs = append(errs, &ValidationError{Axis: s.Axis, Reason: fmt.Sprintf("value %v out of [0,1]", s.Value)})
			continue
		}
		if s.Weight <= 0 || s.Weight > 1 {
			errs = append(errs, &ValidationError{Axis: s.Axis, Reason: fmt.Sprintf("weight %v out of (0,1]", s.Weight)})
			continue
		}

		// Чем выше текущая уверенность, тем слабее влияние одного наблюдения.
		step := s.Weight * (1 - p.Confidence)
		*target = clamp01(*target + step*(s.Value-*target))
		p.Confidence = clamp01(p.Confidence + s.Weight*u.ConfidenceStep)

		p.Anchors = append(p.Anchors, Anchor{EventID: eventID, Axis: s.Axis, Value: s.Value, At: now})
		if u.AnchorCap > 0 && len(p.Anchors) > u.AnchorCap {
			p.Anchors = append(p.Anchors[:0:0], p.Anchors[len(p.Anchors)-u.AnchorCap:]...)
		}
		p.UpdatedAt = now
	}

	if p.Confidence >= u.PublishThreshold {
		p.MBTIType = u.MBTI(p)
	}
	return errs
}

// MBTI maps each axis score to a letter: above 0.5 the first pole of
// E/N/T/J, below it I/S/F/P, exactly 0.5 resolves to the configured tie pole.
func (u Updater) MBTI(p *Profile) string {
	ties := u.TiePoles
	if len(ties) != 4 {
		ties = "ENTJ"
	}
	return letter(p.EI, 'E', 'I', ties[0]) +
		letter(p.SN, 'N', 'S', ties[1]) +
		letter(p.TF, 'T', 'F', ties[2]) +
		letter(p.JP, 'J', 'P', ties[3])
}

func letter(v float64, hi, lo, tie byte) string {
	switch {
	case v > 0.5:
		return string(hi)
	case v < 0.5:
		return string(lo)
	default:
		return string(tie)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
