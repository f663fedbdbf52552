package surgical

import (
	"context"
)

// Names of the two durable records.
const (
	RecordCases    = "surgicalCases"
	RecordSettings = "surgicalConfig"
)

// Repository persists the two named records: the full case collection and
// the settings. A record that was never written loads as (nil, nil).
type Repository interface {
	LoadCases(ctx context.Context) ([]Case, error)
	SaveCases(ctx context.Context, cases []Case) error

	// Settings are returned raw so the caller can merge them over defaults.
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, s Settings) error
}
