package compressor

import (
	"image-optimizer-go/internal/encoder"
	"image-optimizer-go/internal/paths"
)

// Variant is one derivative to produce. Width 0 means natural size.
type Variant struct {
	Format encoder.Format
	Width  int
	Path   string
}

// PlanVariants lists the derivatives for a source whose mirrored output path
// is base and whose natural width is naturalWidth. It also returns the ladder
// widths left out because they are not smaller than the source.
func PlanVariants(base string, naturalWidth int, opts ModeOptions, ladder []int) ([]Variant, []int) {
	original, known := encoder.FormatFromPath(base)
	webpBase := paths.WithFormat(base, encoder.FormatWebP.Ext())
	avifBase := paths.WithFormat(base, encoder.FormatAVIF.Ext())

	var out []Variant
	seen := make(map[string]struct{})
	add := func(v Variant) {
		if _, dup := seen[v.Path]; dup {
			return
		}
		seen[v.Path] = struct{}{}
		out = append(out, v)
	}

	add(Variant{Format: encoder.FormatWebP, Path: webpBase})
	if known && original != encoder.FormatWebP {
		add(Variant{Format: original, Path: base})
	}
	if opts.AVIF {
		add(Variant{Format: encoder.FormatAVIF, Path: avifBase})
	}

	if !opts.Responsive {
		return out, nil
	}

	var skipped []int
	for _, w := range ladder {
		if w >= naturalWidth {
			skipped = append(skipped, w)
			continue
		}
		add(Variant{Format: encoder.FormatWebP, Width: w, Path: paths.WithResolutionSuffix(webpBase, w)})
		if opts.AVIF {
			add(Variant{Format: encoder.FormatAVIF, Width: w, Path: paths.WithResolutionSuffix(avifBase, w)})
		}
		if known && original != encoder.FormatWebP {
			add(Variant{Format: original, Width: w, Path: paths.WithResolutionSuffix(base, w)})
		}
	}
	return out, skipped
}
