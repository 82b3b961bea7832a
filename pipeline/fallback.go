package pipeline

import (
	"fmt"
	"image/color"

	"golang.org/x/image/colornames"
)

// FallbackColor is the flat colour painted by the fallback program.
var FallbackColor color.RGBA = colornames.Magenta

// FallbackSource is a complete program painting FallbackColor over the
// whole output. It compiles against the default vertex stage and the shared
// bind group layout and never reads its inputs.
var FallbackSource = fmt.Sprintf(`// fxnode fallback program

struct FxVertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@fragment
fn fs_main(fx_in: FxVertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(%s, %s, %s, %s);
}
`, unorm(FallbackColor.R), unorm(FallbackColor.G), unorm(FallbackColor.B), unorm(FallbackColor.A))

func unorm(c uint8) string {
	return fmt.Sprintf("%.6f", float64(c)/255)
}
