package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"stylegan-api/internal/infra"
	"stylegan-api/internal/providers/gan"
	"stylegan-api/internal/stylegan"
)

func main() {
	_ = godotenv.Load()

	var (
		modelFlag   string
		imageFlag   string
		outFlag     string
		modelsFlag  string
		stepsFlag   int
		seedFlag    uint
		samplesFlag int
		qualityFlag int
	)
	flag.StringVar(&modelFlag, "model", "", "checkpoint stem or filename, e.g. img31res256fid12")
	flag.StringVar(&imageFlag, "image", "", "target image (jpeg, png, bmp or webp)")
	flag.StringVar(&outFlag, "out", "", "output prefix; writes <out>.sgw and <out>.jpg (defaults to the image name)")
	flag.StringVar(&modelsFlag, "models", envOr("MODELS_DIR", "./models"), "directory holding the checkpoints")
	flag.IntVar(&stepsFlag, "steps", 1000, "optimization steps")
	flag.UintVar(&seedFlag, "seed", stylegan.DefaultProjectionSeed, "seed for the initial noise buffers")
	flag.IntVar(&samplesFlag, "w-avg-samples", 10000, "mapping samples used to estimate the average code")
	flag.IntVar(&qualityFlag, "quality", 75, "JPEG quality of the rendered projection")
	flag.Parse()

	if strings.TrimSpace(modelFlag) == "" || strings.TrimSpace(imageFlag) == "" {
		exitWithError(errors.New("-model and -image are required"))
	}
	if stepsFlag <= 0 {
		exitWithError(fmt.Errorf("-steps must be positive, got %d", stepsFlag))
	}
	if seedFlag > 1<<32-1 {
		exitWithError(fmt.Errorf("-seed must fit in 32 bits, got %d", seedFlag))
	}
	out := outFlag
	if out == "" {
		out = strings.TrimSuffix(imageFlag, extOf(imageFlag))
	}

	logger := infra.NewLogger(envOr("APP_ENV", "cli")).With().Str("cmd", "project").Logger()

	catalog, err := gan.NewCatalog(modelsFlag, envOr("MODEL_VERSION", "stylegan2_ada"))
	if err != nil {
		exitWithError(fmt.Errorf("failed to read model catalog: %w", err))
	}
	d, err := catalog.Resolve(modelFlag)
	if err != nil {
		exitWithError(err)
	}
	backend := gan.Backend(gan.SyntheticBackend)
	if url := os.Getenv("GENERATOR_URL"); url != "" && strings.EqualFold(os.Getenv("GENERATOR_BACKEND"), infra.GeneratorRemote) {
		remote, err := gan.NewRemote(gan.RemoteOptions{BaseURL: url, APIKey: os.Getenv("GENERATOR_API_KEY"), Logger: &logger})
		if err != nil {
			exitWithError(err)
		}
		backend = remote.Backend()
	}

	target, err := readImage(imageFlag)
	if err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models := stylegan.NewModelCache(catalog.Loader(backend))
	engine := stylegan.NewEngine(models, stylegan.NewResolver(nil, nil), &logger)

	opts := stylegan.DefaultProjectOptions()
	opts.Steps = stepsFlag
	seed := uint32(seedFlag)
	opts.Seed = &seed
	opts.WAvgSamples = samplesFlag

	started := time.Now()
	code, err := engine.Project(ctx, d, target, opts)
	if err != nil {
		exitWithError(fmt.Errorf("projection failed: %w", err))
	}
	logger.Info().Str("model", d.Stem()).Int("steps", stepsFlag).Dur("took", time.Since(started)).Msg("projection finished")

	model, err := models.Get(ctx, d)
	if err != nil {
		exitWithError(err)
	}
	rendered, err := model.Synthesize(ctx, code)
	if err != nil {
		exitWithError(fmt.Errorf("render projection: %w", err))
	}
	jpg, err := rendered.EncodeJPEG(qualityFlag)
	if err != nil {
		exitWithError(err)
	}
	raw, err := code.MarshalBinary()
	if err != nil {
		exitWithError(err)
	}
	if err := os.WriteFile(out+".sgw", raw, 0o644); err != nil {
		exitWithError(err)
	}
	if err := os.WriteFile(out+".jpg", jpg, 0o644); err != nil {
		exitWithError(err)
	}
	fmt.Printf("style code: %s.sgw (%dx%d)\nimage: %s.jpg\n", out, code.Layers, code.Channels, out)
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode target %s: %w", path, err)
	}
	return img, nil
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[i:]
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
