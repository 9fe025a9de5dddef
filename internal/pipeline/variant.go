package pipeline

import "github.com/example/go-svc-bridge/internal/bundle"

// exportedDropName is the filename the export tool hardcodes for its result.
const exportedDropName = bundle.ExportedFilename

// Stage identifies one step of the conversion sequence. Stage names appear
// in error reports and logs.
type Stage string

const (
	StageIngest        Stage = "ingest"
	StageExport        Stage = "export"
	StageContentVector Stage = "content-vector"
	StagePitch         Stage = "pitch"
	StageHiddenUnits   Stage = "hidden-units"
	StageSynthesize    Stage = "synthesize"
)

// variantSpec describes everything that differs between the two model
// generations: the venv the tools run in, the synthesis script, the
// hardcoded output location, and whether the hidden-unit stage exists.
// Keeping this in one table keeps variant dispatch out of the stage bodies.
type variantSpec struct {
	venv            string
	inferenceScript string
	outputFile      string
	hiddenUnits     bool
}

var variantSpecs = map[bundle.Variant]variantSpec{
	bundle.V1: {
		venv:            "so_vits_svc_5",
		inferenceScript: "svc_inference.py",
		outputFile:      "svc_out.wav",
	},
	bundle.V2: {
		venv:            "so_vits_svc_5_v2",
		inferenceScript: "svc_inference_v2.py",
		outputFile:      "svc_out_v2.wav",
		hiddenUnits:     true,
	},
}

// variantOrder fixes the iteration order over variantSpecs for inventory and
// cleanup sweeps.
var variantOrder = []bundle.Variant{bundle.V1, bundle.V2}

// probeVenv is the environment used for version detection, which runs before
// the variant is known. The base venv can deserialize both generations'
// checkpoints.
const probeVenv = "so_vits_svc_5"

// stages returns the ordered stage sequence for this variant.
func (s variantSpec) stages() []Stage {
	seq := []Stage{StageIngest, StageExport, StageContentVector, StagePitch}
	if s.hiddenUnits {
		seq = append(seq, StageHiddenUnits)
	}
	return append(seq, StageSynthesize)
}

// allOutputFiles lists the hardcoded synthesis outputs of every known
// variant. Cleanup sweeps all of them because a failed run may never have
// learned its variant.
func allOutputFiles() []string {
	out := make([]string, 0, len(variantOrder))
	for _, v := range variantOrder {
		out = append(out, variantSpecs[v].outputFile)
	}
	return out
}
