package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-svc-bridge/internal/runner"
)

// Variant identifies the model architecture generation a checkpoint was
// trained with. The two generations need different toolchains: V2 requires a
// hidden-unit extraction stage that V1 does not.
type Variant int

const (
	V1 Variant = iota + 1
	V2
)

func (v Variant) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ErrCorruptCheckpoint means the version probe could not classify the
// checkpoint: the file cannot be deserialized or the classifying tensor is
// absent.
var ErrCorruptCheckpoint = errors.New("cannot classify checkpoint")

// DetectVariant classifies a checkpoint by running the probe script in its
// own subprocess; loading the checkpoint needs the toolchain's runtime, not
// ours. The probe inspects the second dimension of the enc_p.pre.weight
// tensor (1024 means V1, anything else V2) and prints a single character.
// The result is deterministic per checkpoint and is not cached.
func DetectVariant(ctx context.Context, r *runner.Runner, python, probeScript, checkpointPath string) (Variant, error) {
	out, err := r.Output(ctx, runner.Invocation{
		Python: python,
		Script: probeScript,
		Args:   []string{checkpointPath},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: probe failed for %s: %v", ErrCorruptCheckpoint, checkpointPath, err)
	}

	switch strings.TrimSpace(string(out)) {
	case "1":
		return V1, nil
	case "2":
		return V2, nil
	default:
		return 0, fmt.Errorf("%w: probe printed %q for %s", ErrCorruptCheckpoint, strings.TrimSpace(string(out)), checkpointPath)
	}
}
