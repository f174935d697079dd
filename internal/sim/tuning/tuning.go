package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/sim/physics"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	Physics    Physics    `yaml:"physics"`
	Prediction Prediction `yaml:"prediction"`
	Viewport   Viewport   `yaml:"viewport"`
	Terrain    Terrain    `yaml:"terrain"`
	Net        Net        `yaml:"net"`
}

// Physics values are per tick, in world units.
type Physics struct {
	WalkSpeed    float64 `yaml:"walk_speed"`
	JumpSpeed    float64 `yaml:"jump_speed"`
	Gravity      float64 `yaml:"gravity"`
	MaxFallSpeed float64 `yaml:"max_fall_speed"`
}

func (p Physics) Params() physics.Params {
	return physics.Params{
		WalkSpeed:    p.WalkSpeed,
		JumpSpeed:    p.JumpSpeed,
		Gravity:      p.Gravity,
		MaxFallSpeed: p.MaxFallSpeed,
	}
}

type Prediction struct {
	TeleportThreshold float64 `yaml:"teleport_threshold"`
	MaxCorrection     float64 `yaml:"max_correction"`
	// MaxPending caps the pending command log; 0 means unbounded.
	MaxPending int `yaml:"max_pending"`
}

type Viewport struct {
	Zoom   float64 `yaml:"zoom"`
	Aspect float64 `yaml:"aspect"`
}

type Terrain struct {
	GroundY     int    `yaml:"ground_y"`
	GroundBlock string `yaml:"ground_block"`
}

type Net struct {
	SendQueue   int `yaml:"send_queue"`
	InboxQueue  int `yaml:"inbox_queue"`
	WriteWaitMs int `yaml:"write_wait_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      60,
		Physics: Physics{
			WalkSpeed:    0.125,
			JumpSpeed:    0.45,
			Gravity:      0.025,
			MaxFallSpeed: 0.8,
		},
		Prediction: Prediction{
			TeleportThreshold: 10,
			MaxCorrection:     0.025,
			MaxPending:        1024,
		},
		Viewport: Viewport{
			Zoom:   12,
			Aspect: 16.0 / 9.0,
		},
		Terrain: Terrain{GroundY: 0, GroundBlock: "DIRT"},
		Net: Net{
			SendQueue:   256,
			InboxQueue:  256,
			WriteWaitMs: 5000,
		},
	}
}

// Load reads a tuning file on top of Defaults, so a file only needs the keys
// it overrides.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz))
	}
	if t.Prediction.TeleportThreshold <= 0 {
		errs = append(errs, fmt.Errorf("prediction.teleport_threshold must be > 0"))
	}
	if t.Prediction.MaxCorrection <= 0 {
		errs = append(errs, fmt.Errorf("prediction.max_correction must be > 0"))
	}
	if t.Prediction.MaxCorrection > t.Prediction.TeleportThreshold {
		errs = append(errs, fmt.Errorf("prediction.max_correction exceeds teleport_threshold"))
	}
	if t.Prediction.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("prediction.max_pending must be >= 0"))
	}
	if t.Physics.WalkSpeed < 0 || t.Physics.Gravity < 0 || t.Physics.MaxFallSpeed < 0 {
		errs = append(errs, fmt.Errorf("physics values must be >= 0"))
	}
	if t.Terrain.GroundBlock == "" {
		errs = append(errs, fmt.Errorf("terrain.ground_block must be set"))
	}
	if t.Viewport.Zoom <= 0 || t.Viewport.Aspect <= 0 {
		errs = append(errs, fmt.Errorf("viewport zoom and aspect must be > 0"))
	}
	return errors.Join(errs...)
}
