package paths

import (
	"path"
	"strconv"
	"strings"
)

// Responsive sizes attributes per layout role.
var responsiveSizes = map[string]string{
	"hero":      "(max-width: 640px) 100vw, 100vw",
	"gallery":   "(max-width: 640px) 100vw, (max-width: 1024px) 50vw, 33vw",
	"thumbnail": "(max-width: 640px) 50vw, 25vw",
	"profile":   "(max-width: 640px) 33vw, 25vw",
}

// Resolver rewrites public asset URLs to the derivatives the pipeline
// writes. Prefix is the URL path of the output directory, e.g. /optimized.
type Resolver struct {
	Prefix string
	Ladder []int
}

// NewResolver builds a resolver for an output directory name such as
// "optimized".
func NewResolver(outputDir string, ladder []int) Resolver {
	prefix := "/" + strings.Trim(path.Clean("/"+filepathToSlash(outputDir)), "/")
	return Resolver{Prefix: prefix, Ladder: ladder}
}

// OptimizedSrc returns the URL of the derivative for src. Remote and SVG
// sources are returned unchanged. A non-zero width selects the ladder
// variant of that width.
func (r Resolver) OptimizedSrc(src string, width int) string {
	if !isLocalURL(src) || isSVG(src) {
		return src
	}

	base := src
	if !strings.HasPrefix(src, r.Prefix+"/") {
		base = r.Prefix + src
	}
	if width <= 0 {
		return base
	}
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + strconv.Itoa(width) + ext
}

// WebPSrc swaps a local JPEG or PNG URL for its WebP sibling.
func (r Resolver) WebPSrc(src string) string {
	if !isLocalURL(src) || isSVG(src) {
		return src
	}
	switch strings.ToLower(path.Ext(src)) {
	case ".jpg", ".jpeg", ".png":
		return strings.TrimSuffix(src, path.Ext(src)) + ".webp"
	default:
		return src
	}
}

// SrcSet lists the WebP derivatives that exist for a source of the given
// natural width, smallest first, followed by the full-size WebP.
func (r Resolver) SrcSet(src string, naturalWidth int) string {
	if !isLocalURL(src) || isSVG(src) {
		return ""
	}

	var entries []string
	for i := len(r.Ladder) - 1; i >= 0; i-- {
		w := r.Ladder[i]
		if naturalWidth > 0 && w >= naturalWidth {
			continue
		}
		entries = append(entries, r.WebPSrc(r.OptimizedSrc(src, w))+" "+strconv.Itoa(w)+"w")
	}
	if naturalWidth > 0 {
		entries = append(entries, r.WebPSrc(r.OptimizedSrc(src, 0))+" "+strconv.Itoa(naturalWidth)+"w")
	}
	return strings.Join(entries, ", ")
}

// ResponsiveSizes returns the sizes attribute for a layout role, falling
// back to the gallery layout.
func ResponsiveSizes(role string) string {
	if s, ok := responsiveSizes[strings.ToLower(strings.TrimSpace(role))]; ok {
		return s
	}
	return responsiveSizes["gallery"]
}

func isLocalURL(src string) bool {
	return strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//")
}

func isSVG(src string) bool {
	return strings.HasSuffix(strings.ToLower(src), ".svg")
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
