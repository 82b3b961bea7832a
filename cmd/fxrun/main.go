// Command fxrun checks and runs effect node definitions.
//
// Usage:
//
//	fxrun -node grade.hcl -check
//	fxrun -node grade.hcl -in photo.png -out graded.png [-effect grade] [-set gamma=0.8]
//
// With -check every effect in the file is embedded and compiled without a
// GPU and its diagnostics are printed. Otherwise the selected effect renders
// the input image on a Vulkan device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/fxnode"
	"github.com/gogpu/fxnode/internal/nodefile"
	"github.com/gogpu/fxnode/pipeline"
	"github.com/gogpu/fxnode/render"
	"github.com/gogpu/fxnode/shadergen"
)

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("fxrun: %v", err)
	}
}

// assignments collects repeated -set name=value flags.
type assignments map[string]float32

func (a assignments) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, k+"="+strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	return strings.Join(parts, ",")
}

func (a assignments) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return err
	}
	a[name] = float32(v)
	return nil
}

func run(stdout, stderr io.Writer, args []string) error {
	set := assignments{}
	fs := flag.NewFlagSet("fxrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		nodePath = fs.String("node", "", "HCL node definition file")
		effect   = fs.String("effect", "", "effect to run (default: the first one)")
		input    = fs.String("in", "", "input image (PNG or JPEG)")
		output   = fs.String("out", "out.png", "output PNG file")
		width    = fs.Int("width", 0, "output width (0: input width)")
		height   = fs.Int("height", 0, "output height (0: input height)")
		check    = fs.Bool("check", false, "compile every effect without a GPU and exit")
		verbose  = fs.Bool("v", false, "debug logging")
	)
	fs.Var(set, "set", "uniform value as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nodePath == "" {
		return errors.New("-node is required")
	}

	if *verbose {
		fxnode.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	effects, err := nodefile.Load(*nodePath)
	if err != nil {
		return err
	}
	if *check {
		return checkEffects(stdout, effects)
	}

	e, err := selectEffect(effects, *effect)
	if err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-in is required")
	}
	return renderEffect(stderr, e, set, *input, *output, *width, *height)
}

func selectEffect(effects []nodefile.Effect, name string) (nodefile.Effect, error) {
	if name == "" {
		return effects[0], nil
	}
	for _, e := range effects {
		if e.Name == name {
			return e, nil
		}
	}
	return nodefile.Effect{}, fmt.Errorf("no effect %q", name)
}

// checkEffects embeds and compiles every effect, printing one line per
// effect. It fails if any effect is rejected.
func checkEffects(w io.Writer, effects []nodefile.Effect) error {
	failed := 0
	for _, e := range effects {
		names := make([]string, len(e.Uniforms))
		for i, d := range e.Uniforms {
			names[i] = d.Name
		}
		gen, err := shadergen.Generate(shadergen.Source{Code: e.Code, Raw: e.Raw}, names)
		if err == nil {
			err = pipeline.Validate(gen.Text)
		}
		if err == nil {
			fmt.Fprintf(w, "%s: ok\n", e.Name)
			continue
		}
		failed++
		var ce *pipeline.CompileError
		if errors.As(err, &ce) {
			if line := gen.UserLine(ce.Line); line > 0 {
				fmt.Fprintf(w, "%s: line %d: %s\n", e.Name, line, ce.Message)
			} else {
				fmt.Fprintf(w, "%s: %s\n", e.Name, ce.Message)
			}
			if ce.Fragment != "" {
				fmt.Fprintf(w, "    %s\n", ce.Fragment)
			}
			continue
		}
		fmt.Fprintf(w, "%s: %v\n", e.Name, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d effects rejected", failed, len(effects))
	}
	return nil
}

func renderEffect(stderr io.Writer, e nodefile.Effect, set assignments, inPath, outPath string, width, height int) error {
	in, err := readImage(inPath)
	if err != nil {
		return err
	}

	logger := fxnode.Logger()
	d, err := render.OpenDevice(gputypes.BackendVulkan, render.WithLogger(logger))
	if err != nil {
		return err
	}
	defer d.Close()

	builder := pipeline.NewBuilder(d.Device, pipeline.WithLogger(logger))
	defer builder.Close()
	disp := render.NewHALDispatcher(d, render.WithLogger(logger))
	defer disp.Close()

	opts := append(e.Options(), fxnode.WithConsoleCallback(func(text string) {
		fmt.Fprintf(stderr, "%s: %s\n", e.Name, text)
	}))
	node, err := fxnode.New(builder, disp, opts...)
	if err != nil {
		return err
	}
	defer node.Close()

	for name, v := range set {
		if err := node.NotifyUniformValueChanged(name, v); err != nil {
			return err
		}
	}

	out, err := node.OnUpstreamFrameReady(context.Background(), in, width, height)
	if err != nil {
		return err
	}
	return writePNG(outPath, out)
}

func readImage(path string) (*render.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return render.NewFrameFromImage(img), nil
}

func writePNG(path string, frame *render.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame.Image()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
