package jobs

import "strings"

const (
	RendersPrefix = "/renders"
	UploadsPrefix = "/uploads"
	FinalPrefix   = "/final"

	originalName = "original.jpg"
	previewName  = "preview.jpg"
	finalName    = "final.jpg"
)

// OriginalPath is where the submitted photo is stored.
func OriginalPath(jobID string) string {
	return RendersPrefix + "/" + jobID + "/" + originalName
}

// PreviewPath is where the watermarked preview is stored.
func PreviewPath(jobID string) string {
	return RendersPrefix + "/" + jobID + "/" + previewName
}

// VariationFinalPath is where a finalized variation of an existing render is
// stored.
func VariationFinalPath(jobID string) string {
	return RendersPrefix + "/" + jobID + "/" + finalName
}

// FinalPath derives the paid asset's location from the original's path.
// Originals stored under the legacy /uploads/ prefix are moved to /final/ by
// substitution; any other layout is nested under /final as-is.
func FinalPath(originalPath string) string {
	if strings.HasPrefix(originalPath, UploadsPrefix+"/") {
		return FinalPrefix + "/" + strings.TrimPrefix(originalPath, UploadsPrefix+"/")
	}
	normalized := originalPath
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	return collapseSlashes(FinalPrefix + normalized)
}

// ParentFolder returns the folder containing p, or "" for root-level paths.
func ParentFolder(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}

func collapseSlashes(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
