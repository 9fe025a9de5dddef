// Package hardware maps a requested compute device to the environment
// overrides the so-vits-svc tools understand.
package hardware

// CPU is the selector value that hides all accelerators from the tools.
const CPU = "cpu"

// Select returns KEY=VALUE environment overrides for the given GPU id.
// An empty id or "cpu" masks all CUDA devices so the tools fall back to CPU;
// any other value is passed through as the visible device.
func Select(gpuID string) []string {
	if gpuID == "" || gpuID == CPU {
		return []string{"CUDA_VISIBLE_DEVICES="}
	}
	return []string{"CUDA_VISIBLE_DEVICES=" + gpuID}
}
