package engine

// ModelSpec describes a GGUF model the daemon can run.
type ModelSpec struct {
	Name string // Human-readable name (e.g., "qwen3-1.7b")
	URL  string // HuggingFace download URL
	File string // Local filename

	// ResidentSize is the estimated memory footprint of the loaded
	// weights, before KV cache. Used with the safety margin for
	// resource-aware selection.
	ResidentSize uint64

	// MinContext/MaxContext clamp the derived context window.
	MinContext int
	MaxContext int
}

// Catalog lists supported models, largest first. Selection walks this
// list and picks the first model that fits available memory.
var Catalog = []ModelSpec{
	{
		Name:         "qwen3-4b-instruct",
		URL:          "https://huggingface.co/Qwen/Qwen3-4B-GGUF/resolve/main/qwen3-4b-q4_k_m.gguf",
		File:         "qwen3-4b-q4_k_m.gguf",
		ResidentSize: 2700 << 20,
		MinContext:   2048,
		MaxContext:   8192,
	},
	{
		Name:         "qwen3-1.7b-instruct",
		URL:          "https://huggingface.co/Qwen/Qwen3-1.7B-GGUF/resolve/main/qwen3-1.7b-q4_k_m.gguf",
		File:         "qwen3-1.7b-q4_k_m.gguf",
		ResidentSize: 1300 << 20,
		MinContext:   2048,
		MaxContext:   8192,
	},
	{
		Name:         "qwen3-0.6b-instruct",
		URL:          "https://huggingface.co/Qwen/Qwen3-0.6B-GGUF/resolve/main/qwen3-0.6b-q8_0.gguf",
		File:         "qwen3-0.6b-q8_0.gguf",
		ResidentSize: 750 << 20,
		MinContext:   1024,
		MaxContext:   4096,
	},
}

// FindModel returns the catalog entry with the given name.
func FindModel(name string) (ModelSpec, bool) {
	for _, spec := range Catalog {
		if spec.Name == name {
			return spec, true
		}
	}
	return ModelSpec{}, false
}

// SmallestResidentSize returns the footprint of the smallest supported
// model, the requirement reported when nothing fits.
func SmallestResidentSize() uint64 {
	smallest := Catalog[0].ResidentSize
	for _, spec := range Catalog[1:] {
		if spec.ResidentSize < smallest {
			smallest = spec.ResidentSize
		}
	}
	return smallest
}
