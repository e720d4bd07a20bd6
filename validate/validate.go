// Package validate normalizes and rejects unsafe or malformed artifact names.
//
// The validator is the gate in front of every backend: a name that fails here
// never generates network traffic. It performs no I/O and never panics —
// every input maps to a structured Outcome.
package validate

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// MaxNameLength is the longest accepted raw artifact name.
const MaxNameLength = 500

// Placeholder is substituted when normalization leaves an empty name.
const Placeholder = "unnamed_model"

// allowedExtensions is the allow-list of known artifact formats. A name whose
// extension is not listed here is rejected before any backend is consulted.
var allowedExtensions = map[string]bool{
	".safetensors": true,
	".ckpt":        true,
	".pt":          true,
	".pth":         true,
	".bin":         true,
	".onnx":        true,
	".gguf":        true,
	".sft":         true,
	".vae":         true,
	// Some checkpoints ship a paired config file under the same stem.
	".yaml": true,
}

// executableExtensions are rejected outright regardless of the allow-list.
var executableExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true,
	".sh": true, ".ps1": true, ".msi": true, ".dll": true, ".js": true,
	".vbs": true,
}

// illegalChars are characters invalid on common target filesystems.
// They are replaced with underscores during normalization.
const illegalChars = `<>:"/\|?*`

// Outcome is the structured result of validating one raw name.
type Outcome struct {
	// OK reports whether the name is safe to resolve.
	OK bool
	// Normalized is the cleaned name. Meaningful only when OK.
	Normalized string
	// Reason explains the rejection when OK is false.
	Reason string
}

func reject(reason string) Outcome {
	return Outcome{OK: false, Reason: reason}
}

// Check validates and normalizes a raw artifact name.
func Check(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return reject("empty filename")
	}
	if len(raw) > MaxNameLength {
		return reject(fmt.Sprintf("filename exceeds %d characters", MaxNameLength))
	}
	if strings.Contains(raw, "://") {
		return reject("filename contains a URL scheme")
	}
	for _, r := range raw {
		if r == '\n' || r == '\r' || unicode.IsControl(r) {
			return reject("filename contains control characters")
		}
	}
	if strings.Contains(raw, "..") {
		return reject("filename contains path traversal")
	}

	// Names may arrive with a directory prefix from the workflow
	// (e.g. "SD1.5/model.safetensors"); only the base name is resolved.
	base := path.Base(strings.ReplaceAll(raw, `\`, "/"))
	if base == "." || base == "/" {
		return reject("filename reduces to a path component")
	}

	ext := strings.ToLower(path.Ext(base))
	if executableExtensions[ext] {
		return reject(fmt.Sprintf("executable extension %s not allowed", ext))
	}
	if !allowedExtensions[ext] {
		return reject(fmt.Sprintf("extension %q is not a known artifact format", ext))
	}

	normalized := normalize(base)
	if normalized == "" {
		normalized = Placeholder
	}
	return Outcome{OK: true, Normalized: normalized}
}

// normalize replaces filesystem-illegal characters with underscores and
// trims leading/trailing spaces and dots, preserving case.
func normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(illegalChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .")
}
