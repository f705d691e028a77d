// Package detections defines the per-clip detections document and loads it
// from disk with schema validation.
package detections

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TimeUnitSeconds is the only supported time unit.
const TimeUnitSeconds = "seconds"

// ErrInvalidDocument is returned when a detections document fails to decode
// or validate.
var ErrInvalidDocument = errors.New("invalid detections document")

var validate = validator.New()

// Meta describes the clip the detections belong to.
type Meta struct {
	ClipID      string  `json:"clip_id" validate:"required"`
	FPS         float64 `json:"fps" validate:"gt=0"`
	FrameWidth  int     `json:"frame_width" validate:"gte=0"`
	FrameHeight int     `json:"frame_height" validate:"gte=0"`
	TimeUnit    string  `json:"time_unit" validate:"eq=seconds"`
}

// Object is a single detection within a frame. The id recurs across frames
// and identifies the track the detection belongs to.
type Object struct {
	ID          string    `json:"id" validate:"required"`
	Class       string    `json:"class" validate:"required"`
	BBoxXYXY    []float64 `json:"bbox_xyxy" validate:"len=4"`
	Confidence  *float64  `json:"confidence,omitempty"`
	TrackID     *int      `json:"track_id,omitempty"`
	VelocityPxS []float64 `json:"velocity_px_s,omitempty" validate:"omitempty,len=2"`
}

// Center returns the midpoint of the bounding box.
func (o Object) Center() (float64, float64) {
	b := o.BBoxXYXY
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// Frame holds all detections at one timestamp (seconds).
type Frame struct {
	T       float64  `json:"t"`
	Objects []Object `json:"objects" validate:"dive"`
}

// Clip is the full detections document for one video clip.
type Clip struct {
	Meta   Meta    `json:"meta"`
	Frames []Frame `json:"frames" validate:"required,dive"`
}

// Load reads and validates the detections document at path.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer f.Close()

	clip, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// Decode parses a detections document from r and validates it. Fields the
// schema requires must be present and non-null; zero values are not
// substituted for them.
func Decode(r io.Reader) (*Clip, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, validationError(err)
	}
	clip := doc.clip()
	clip.normalize()
	if err := Validate(clip); err != nil {
		return nil, err
	}
	return clip, nil
}

// Validate checks the document against its schema.
func Validate(clip *Clip) error {
	if err := validate.Struct(clip); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, describe(verrs))
	}
	return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
}

func (c *Clip) normalize() {
	if c.Meta.TimeUnit == "" {
		c.Meta.TimeUnit = TimeUnitSeconds
	}
	for i := range c.Frames {
		if c.Frames[i].Objects == nil {
			c.Frames[i].Objects = []Object{}
		}
	}
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// ObjectCount returns the total number of detections across all frames.
func (c *Clip) ObjectCount() int {
	n := 0
	for _, f := range c.Frames {
		n += len(f.Objects)
	}
	return n
}

// document mirrors Clip on the wire with pointers for required values, so a
// missing or null field is distinguishable from zero.
type document struct {
	Meta   *wireMeta   `json:"meta" validate:"required"`
	Frames []wireFrame `json:"frames" validate:"required,dive"`
}

type wireMeta struct {
	ClipID      string   `json:"clip_id" validate:"required"`
	FPS         *float64 `json:"fps" validate:"required"`
	FrameWidth  *int     `json:"frame_width" validate:"required"`
	FrameHeight *int     `json:"frame_height" validate:"required"`
	TimeUnit    string   `json:"time_unit"`
}

type wireFrame struct {
	T       *float64     `json:"t" validate:"required"`
	Objects []wireObject `json:"objects" validate:"dive"`
}

type wireObject struct {
	ID          string     `json:"id"`
	Class       string     `json:"class"`
	BBoxXYXY    []*float64 `json:"bbox_xyxy" validate:"required,dive,required"`
	Confidence  *float64   `json:"confidence"`
	TrackID     *int       `json:"track_id"`
	VelocityPxS []*float64 `json:"velocity_px_s" validate:"omitempty,dive,required"`
}

// clip converts a presence-checked document. Range and length checks are
// left to Validate on the result.
func (d *document) clip() *Clip {
	clip := &Clip{
		Meta: Meta{
			ClipID:      d.Meta.ClipID,
			FPS:         *d.Meta.FPS,
			FrameWidth:  *d.Meta.FrameWidth,
			FrameHeight: *d.Meta.FrameHeight,
			TimeUnit:    d.Meta.TimeUnit,
		},
		Frames: make([]Frame, len(d.Frames)),
	}
	for i, wf := range d.Frames {
		frame := Frame{T: *wf.T}
		if wf.Objects != nil {
			frame.Objects = make([]Object, len(wf.Objects))
		}
		for j, wo := range wf.Objects {
			frame.Objects[j] = Object{
				ID:          wo.ID,
				Class:       wo.Class,
				BBoxXYXY:    derefAll(wo.BBoxXYXY),
				Confidence:  wo.Confidence,
				TrackID:     wo.TrackID,
				VelocityPxS: derefAll(wo.VelocityPxS),
			}
		}
		clip.Frames[i] = frame
	}
	return clip
}

func derefAll(values []*float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = *v
	}
	return out
}
