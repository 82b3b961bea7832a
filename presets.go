package fxnode

// Built-in effect fragments.
const (
	// Passthrough copies the input. It is the default code of a node.
	Passthrough = "pix = input;"

	// LumaToAlpha keeps the colour and replaces alpha with the Rec. 709
	// luma of the input.
	LumaToAlpha = "pix = vec4<f32>(input.rgb, dot(input.rgb, vec3<f32>(0.2126, 0.7152, 0.0722)));"

	// IgnoreAlpha makes the input fully opaque.
	IgnoreAlpha = "pix = vec4<f32>(input.rgb, 1.0);"

	// Premultiply multiplies the colour channels by alpha.
	Premultiply = "pix = vec4<f32>(input.rgb * input.a, input.a);"
)
