package detections

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDoc = `{
  "meta": {"clip_id": "clip_a", "fps": 30, "frame_width": 640, "frame_height": 360},
  "frames": [
    {"t": 0.0, "objects": [{"id": "car_1", "class": "car", "bbox_xyxy": [10, 10, 50, 30], "confidence": 0.9}]},
    {"t": 0.1, "objects": [{"id": "car_1", "class": "car", "bbox_xyxy": [12, 10, 52, 30], "track_id": 7, "velocity_px_s": [20, 0]}]},
    {"t": 0.2}
  ]
}`

func TestDecode_Valid(t *testing.T) {
	clip, err := Decode(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Meta.ClipID != "clip_a" {
		t.Errorf("ClipID = %q, want clip_a", clip.Meta.ClipID)
	}
	if clip.Meta.TimeUnit != TimeUnitSeconds {
		t.Errorf("TimeUnit = %q, want default %q", clip.Meta.TimeUnit, TimeUnitSeconds)
	}
	if len(clip.Frames) != 3 {
		t.Fatalf("len(Frames) = %d, want 3", len(clip.Frames))
	}
	if clip.Frames[2].Objects == nil {
		t.Error("missing objects should default to an empty slice")
	}
	if clip.ObjectCount() != 2 {
		t.Errorf("ObjectCount = %d, want 2", clip.ObjectCount())
	}
	if tid := clip.Frames[1].Objects[0].TrackID; tid == nil || *tid != 7 {
		t.Errorf("TrackID = %v, want 7", tid)
	}
	cx, cy := clip.Frames[0].Objects[0].Center()
	if cx != 30 || cy != 20 {
		t.Errorf("Center = (%v, %v), want (30, 20)", cx, cy)
	}
}

func TestDecode_DegenerateBoxAllowed(t *testing.T) {
	doc := `{"meta":{"clip_id":"c","fps":10,"frame_width":0,"frame_height":0},
	  "frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[50,50,10,10]}]}]}`
	if _, err := Decode(strings.NewReader(doc)); err != nil {
		t.Fatalf("inverted bbox should be tolerated: %v", err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "malformed json",
			doc:     `{"meta":`,
			wantMsg: "invalid detections document",
		},
		{
			name:    "missing clip id",
			doc:     `{"meta":{"fps":30,"frame_width":1,"frame_height":1},"frames":[]}`,
			wantMsg: "ClipID",
		},
		{
			name:    "missing frames",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1}}`,
			wantMsg: "Frames",
		},
		{
			name:    "short bbox",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[1,2,3]}]}]}`,
			wantMsg: "BBoxXYXY",
		},
		{
			name:    "bad velocity",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[1,2,3,4],"velocity_px_s":[1]}]}]}`,
			wantMsg: "VelocityPxS",
		},
		{
			name:    "wrong time unit",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1,"time_unit":"frames"},"frames":[]}`,
			wantMsg: "TimeUnit",
		},
		{
			name:    "zero fps",
			doc:     `{"meta":{"clip_id":"c","fps":0,"frame_width":1,"frame_height":1},"frames":[]}`,
			wantMsg: "FPS",
		},
		{
			name:    "missing object id",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"class":"x","bbox_xyxy":[1,2,3,4]}]}]}`,
			wantMsg: "ID",
		},
		{
			name:    "missing meta",
			doc:     `{"frames":[]}`,
			wantMsg: "Meta",
		},
		{
			name:    "missing frame time",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"objects":[]}]}`,
			wantMsg: "Frames[0].T",
		},
		{
			name:    "null frame time",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0},{"t":null}]}`,
			wantMsg: "Frames[1].T",
		},
		{
			name:    "missing frame width",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_height":1},"frames":[]}`,
			wantMsg: "Meta.FrameWidth",
		},
		{
			name:    "missing frame height",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1},"frames":[]}`,
			wantMsg: "Meta.FrameHeight",
		},
		{
			name:    "missing fps",
			doc:     `{"meta":{"clip_id":"c","frame_width":1,"frame_height":1},"frames":[]}`,
			wantMsg: "Meta.FPS",
		},
		{
			name:    "null bbox values",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[null,null,null,null]}]}]}`,
			wantMsg: "BBoxXYXY[0]",
		},
		{
			name:    "missing bbox",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"id":"a","class":"x"}]}]}`,
			wantMsg: "BBoxXYXY",
		},
		{
			name:    "null velocity component",
			doc:     `{"meta":{"clip_id":"c","fps":30,"frame_width":1,"frame_height":1},"frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[1,2,3,4],"velocity_px_s":[1,null]}]}]}`,
			wantMsg: "VelocityPxS[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("error %v should wrap ErrInvalidDocument", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip_a_detections.json")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if clip.Meta.FrameWidth != 640 {
		t.Errorf("FrameWidth = %d, want 640", clip.Meta.FrameWidth)
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecode_ZeroValuesArePresent(t *testing.T) {
	doc := `{"meta":{"clip_id":"c","fps":5,"frame_width":0,"frame_height":0},
	  "frames":[{"t":0,"objects":[{"id":"a","class":"x","bbox_xyxy":[0,0,0,0],"velocity_px_s":[0,0]}]}]}`
	clip, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("explicit zeros should decode: %v", err)
	}
	obj := clip.Frames[0].Objects[0]
	if len(obj.BBoxXYXY) != 4 || len(obj.VelocityPxS) != 2 {
		t.Errorf("BBoxXYXY = %v, VelocityPxS = %v", obj.BBoxXYXY, obj.VelocityPxS)
	}
	if obj.Confidence != nil || obj.TrackID != nil {
		t.Error("absent optional fields should stay nil")
	}
}
