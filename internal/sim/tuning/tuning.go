package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz          int `yaml:"tick_rate_hz"`
	PersistEveryTicks   int `yaml:"persist_every_ticks"`
	ReplicateEveryTicks int `yaml:"replicate_every_ticks"`
	SnapshotEveryTicks  int `yaml:"snapshot_every_ticks"`

	Replication Replication `yaml:"replication"`
}

type Replication struct {
	MaxSubscribers     int `yaml:"max_subscribers"`
	SendBuffer         int `yaml:"send_buffer"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "0.1",
		TickRateHz:          5,
		PersistEveryTicks:   5,
		ReplicateEveryTicks: 1,
		SnapshotEveryTicks:  3000,
		Replication: Replication{
			MaxSubscribers:     64,
			SendBuffer:         16,
			IdleTimeoutSeconds: 60,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("colony.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("colony.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.PersistEveryTicks <= 0 {
		return fmt.Errorf("persist_every_ticks must be > 0")
	}
	if t.ReplicateEveryTicks <= 0 {
		return fmt.Errorf("replicate_every_ticks must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.Replication.MaxSubscribers <= 0 || t.Replication.SendBuffer <= 0 || t.Replication.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("replication limits must be > 0")
	}
	return nil
}
