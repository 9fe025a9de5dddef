package pipeline

import (
	"strings"
	"testing"

	"github.com/example/go-svc-bridge/internal/bundle"
)

func TestVariantStageSequences(t *testing.T) {
	v1 := variantSpecs[bundle.V1].stages()
	wantV1 := []Stage{StageIngest, StageExport, StageContentVector, StagePitch, StageSynthesize}
	if len(v1) != len(wantV1) {
		t.Fatalf("v1 stages = %v, want %v", v1, wantV1)
	}
	for i := range wantV1 {
		if v1[i] != wantV1[i] {
			t.Errorf("v1 stage[%d] = %s, want %s", i, v1[i], wantV1[i])
		}
	}

	v2 := variantSpecs[bundle.V2].stages()
	wantV2 := []Stage{StageIngest, StageExport, StageContentVector, StagePitch, StageHiddenUnits, StageSynthesize}
	if len(v2) != len(wantV2) {
		t.Fatalf("v2 stages = %v, want %v", v2, wantV2)
	}
	for i := range wantV2 {
		if v2[i] != wantV2[i] {
			t.Errorf("v2 stage[%d] = %s, want %s", i, v2[i], wantV2[i])
		}
	}
}

func TestAllOutputFilesCoversBothVariants(t *testing.T) {
	files := allOutputFiles()
	if len(files) != 2 {
		t.Fatalf("allOutputFiles() = %v, want two entries", files)
	}
	joined := strings.Join(files, ",")
	for _, v := range []bundle.Variant{bundle.V1, bundle.V2} {
		if !strings.Contains(joined, variantSpecs[v].outputFile) {
			t.Errorf("missing %s output %q", v, variantSpecs[v].outputFile)
		}
	}
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "/srv"}

	if got := l.ArchitectureRoot(); got != "/srv/"+ArchitectureName {
		t.Errorf("ArchitectureRoot = %q", got)
	}
	if got := l.Python("so_vits_svc_5"); got != "/srv/.venvs/so_vits_svc_5/bin/python" {
		t.Errorf("Python = %q", got)
	}
	if got := l.Script("whisper/inference.py"); got != "/srv/"+ArchitectureName+"/whisper/inference.py" {
		t.Errorf("Script = %q", got)
	}
	if got := l.DefaultConfigPath(); got != "/srv/"+ArchitectureName+"/configs/base.yaml" {
		t.Errorf("DefaultConfigPath = %q", got)
	}
	if got := l.ExportDropPath(); got != "/srv/"+ArchitectureName+"/"+exportedDropName {
		t.Errorf("ExportDropPath = %q", got)
	}
}
