package compressor

import (
	"reflect"
	"testing"

	"image-optimizer-go/internal/encoder"
)

func variantPaths(vs []Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Path
	}
	return out
}

func TestPlanVariantsBulkJPEG(t *testing.T) {
	vs, skipped := PlanVariants("out/a/hero.jpg", 3000, ModeOptions{}, []int{1920, 640})
	want := []string{"out/a/hero.webp", "out/a/hero.jpg"}
	if got := variantPaths(vs); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if skipped != nil {
		t.Fatalf("skipped = %v, want none", skipped)
	}
	if vs[1].Format != encoder.FormatJPEG || vs[1].Width != 0 {
		t.Fatalf("original variant = %+v", vs[1])
	}
}

func TestPlanVariantsOnDemandLadder(t *testing.T) {
	opts := ModeOptions{AVIF: true, Responsive: true}
	vs, skipped := PlanVariants("o/p.png", 800, opts, []int{1920, 1280, 960, 640, 480, 320})

	want := []string{
		"o/p.webp", "o/p.png", "o/p.avif",
		"o/p_640.webp", "o/p_640.avif", "o/p_640.png",
		"o/p_480.webp", "o/p_480.avif", "o/p_480.png",
		"o/p_320.webp", "o/p_320.avif", "o/p_320.png",
	}
	if got := variantPaths(vs); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v\nwant %v", got, want)
	}
	if !reflect.DeepEqual(skipped, []int{1920, 1280, 960}) {
		t.Fatalf("skipped = %v", skipped)
	}
}

func TestPlanVariantsWebPSourceYieldsTwoPerWidth(t *testing.T) {
	opts := ModeOptions{AVIF: true, Responsive: true}
	vs, _ := PlanVariants("o/x.webp", 700, opts, []int{640})

	want := []string{"o/x.webp", "o/x.avif", "o/x_640.webp", "o/x_640.avif"}
	if got := variantPaths(vs); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestPlanVariantsEqualWidthIsSkipped(t *testing.T) {
	_, skipped := PlanVariants("o/x.jpg", 640, ModeOptions{Responsive: true}, []int{640, 320})
	if !reflect.DeepEqual(skipped, []int{640}) {
		t.Fatalf("skipped = %v, want [640]", skipped)
	}
}

func TestPlanVariantsUnknownExtension(t *testing.T) {
	vs, _ := PlanVariants("o/x.gif", 100, ModeOptions{AVIF: true}, nil)
	want := []string{"o/x.webp", "o/x.avif"}
	if got := variantPaths(vs); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}
