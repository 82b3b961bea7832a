// Package fxnode is a live WGSL effect node for real-time compositing
// graphs.
//
// # Overview
//
// A Node lets a user write a small fragment of WGSL that runs once per
// output pixel, and turns it into a GPU pipeline without ever stalling the
// graph it lives in. When the fragment does not compile the node keeps
// rendering a flat magenta fallback and reports a diagnostic on its console
// until the next edit fixes it.
//
// # Quick Start
//
//	device, _ := render.OpenDevice(gputypes.BackendVulkan)
//	builder := pipeline.NewBuilder(device.Device)
//	disp := render.NewHALDispatcher(device)
//
//	node, err := fxnode.New(builder, disp,
//	    fxnode.WithUniforms(uniform.Descriptor{Name: "gamma", Value: 0.5, Default: 1}),
//	    fxnode.WithCode("pix = vec4<f32>(pow(input.rgb, vec3<f32>(gamma)), input.a);"),
//	)
//	out, err := node.OnUpstreamFrameReady(ctx, frame, 1920, 1080)
//
// # Effect code
//
// The fragment sees these names:
//
//	input   vec4<f32>  the input frame sampled at uv
//	pix     vec4<f32>  the output, initialised to input
//	uv      vec2<f32>  normalized coordinate, u and v its components
//	xy      vec2<f32>  unnormalized pixel coordinate
//	pi      vec2<i32>  pixel index
//	w, h    f32        output size in pixels
//	wu, hv  f32        reciprocals of w and h
//
// and one f32 per uniform. In raw mode the code is a complete program that
// must define fs_main itself.
//
// # Structural and value changes
//
// Changing the code, the raw flag, the vertex stage or the set of uniforms
// is structural and rebuilds the pipeline. Changing a uniform value is not:
// values are looked up by name every time a frame is dispatched.
//
// # Logging
//
// The node logs through the logger installed with SetLogger, which is
// silent by default.
package fxnode

// Version information
const (
	// Version is the current version of the module
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
