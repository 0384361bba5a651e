package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/config"
	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/logging"
	"cropguide/backend/internal/media"
	"cropguide/backend/internal/model"
)

type clientFactory func(ctx context.Context, cfg config.Model) (model.Client, error)

type app struct {
	envFile   string
	output    string
	verbose   bool
	newClient clientFactory
}

func newRootCmd(newClient clientFactory) *cobra.Command {
	a := &app{newClient: newClient}

	root := &cobra.Command{
		Use:   "advise",
		Short: "Ask the crop advisory flows from the command line",
		Long: `advise runs a single crop advisory flow and prints the structured answer.
Images are read from local files and sent inline to the configured model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if a.output != "json" && a.output != "yaml" {
				return fmt.Errorf("unsupported output format %q (use json or yaml)", a.output)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env", "", "Path to .env file")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "Output format: json or yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log flow invocations")

	root.AddCommand(
		a.questionCmd("guidance", "Structured cultivation guidance for a question",
			func(ctx context.Context, adv *agronomy.Advisor, q string) (any, error) {
				return adv.AskGuidance(ctx, q)
			}),
		a.questionCmd("ask", "A free-form answer to a cultivation question",
			func(ctx context.Context, adv *agronomy.Advisor, q string) (any, error) {
				return adv.AskQuestion(ctx, q)
			}),
		a.photoCmd("disease", "Detect plant disease in a photo",
			func(ctx context.Context, adv *agronomy.Advisor, uri string) (any, error) {
				return adv.DetectDisease(ctx, uri)
			}),
		a.photoCmd("growth", "Estimate the growth stage of a crop in a photo",
			func(ctx context.Context, adv *agronomy.Advisor, uri string) (any, error) {
				return adv.AnalyzeGrowth(ctx, uri)
			}),
		a.photoCmd("vegetation", "Estimate vegetation and soil indices from a field photo",
			func(ctx context.Context, adv *agronomy.Advisor, uri string) (any, error) {
				return adv.AnalyzeVegetation(ctx, uri)
			}),
		a.cropsCmd(),
		a.farmCmd(),
	)
	return root
}

func (a *app) advisor(ctx context.Context) (*agronomy.Advisor, error) {
	cfg, err := config.LoadConfig(a.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewNop()
	if a.verbose {
		logger = logging.NewLogger("debug", "console")
	}

	client, err := a.newClient(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	catalog, err := agronomy.NewCatalog(client, flow.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return agronomy.NewAdvisor(catalog, cfg.Flows.MaxConcurrency, logger)
}

func (a *app) run(cmd *cobra.Command, call func(ctx context.Context, adv *agronomy.Advisor) (any, error)) error {
	ctx := cmd.Context()
	adv, err := a.advisor(ctx)
	if err != nil {
		return err
	}
	defer adv.Close()

	out, err := call(ctx, adv)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.output, out)
}

func (a *app) questionCmd(use, short string, ask func(context.Context, *agronomy.Advisor, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <question>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return a.run(cmd, func(ctx context.Context, adv *agronomy.Advisor) (any, error) {
				return ask(ctx, adv, query)
			})
		},
	}
}

func (a *app) photoCmd(use, short string, analyze func(context.Context, *agronomy.Advisor, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <image>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := readImage(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, adv *agronomy.Advisor) (any, error) {
				return analyze(ctx, adv, uri)
			})
		},
	}
}

func (a *app) cropsCmd() *cobra.Command {
	var land agronomy.LandDetails
	cmd := &cobra.Command{
		Use:   "crops <land-image>",
		Short: "Suggest crops for a piece of land",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := readImage(args[0])
			if err != nil {
				return err
			}
			land.PhotoDataURI = uri
			return a.run(cmd, func(ctx context.Context, adv *agronomy.Advisor) (any, error) {
				return adv.SuggestCrops(ctx, land)
			})
		},
	}
	cmd.Flags().StringVar(&land.LandSize, "land-size", "", "Land size in acres")
	cmd.Flags().StringVar(&land.IrrigationSystem, "irrigation", "", "Irrigation system in use")
	_ = cmd.MarkFlagRequired("land-size")
	_ = cmd.MarkFlagRequired("irrigation")
	return cmd
}

func (a *app) farmCmd() *cobra.Command {
	var (
		details   agronomy.FarmDetails
		landPhoto string
		crops     []string
	)
	cmd := &cobra.Command{
		Use:   "farm",
		Short: "Analyze every crop on a farm",
		Example: `  advise farm --land-size 5 --irrigation drip \
    --crop wheat=field-north.jpg --crop mustard=field-south.jpg --crop gram --land-photo farm.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if landPhoto != "" {
				uri, err := readImage(landPhoto)
				if err != nil {
					return err
				}
				details.LandPhotoDataURI = uri
			}
			for _, spec := range crops {
				name, path, hasPhoto := strings.Cut(spec, "=")
				if name == "" || (hasPhoto && path == "") {
					return fmt.Errorf("invalid --crop %q, expected name or name=image", spec)
				}
				crop := agronomy.FarmCrop{Name: name}
				if hasPhoto {
					uri, err := readImage(path)
					if err != nil {
						return err
					}
					crop.PhotoDataURI = uri
				}
				details.Crops = append(details.Crops, crop)
			}
			return a.run(cmd, func(ctx context.Context, adv *agronomy.Advisor) (any, error) {
				return adv.AnalyzeFarm(ctx, details)
			})
		},
	}
	cmd.Flags().StringVar(&details.LandSize, "land-size", "", "Land size in acres")
	cmd.Flags().StringVar(&details.IrrigationSystem, "irrigation", "", "Irrigation system in use")
	cmd.Flags().StringVar(&landPhoto, "land-photo", "", "Photo of the land, enables crop suggestions")
	cmd.Flags().StringArrayVar(&crops, "crop", nil, "A crop as name or name=image (repeatable)")
	_ = cmd.MarkFlagRequired("land-size")
	_ = cmd.MarkFlagRequired("irrigation")
	_ = cmd.MarkFlagRequired("crop")
	return cmd
}

// readImage loads a file as a data URI. The media type comes from the file
// extension, falling back to content sniffing.
func readImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return media.Encode(mimeType, data), nil
}

func render(w io.Writer, format string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(gjson.ParseBytes(b).Value()); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return enc.Close()
}
