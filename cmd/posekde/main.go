// Package main is the posekde command line tool. It reads observations as JSON lines and
// evaluates, samples or classifies with kernel densities over poses.
package main

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/posekde/classifier"
	"go.viam.com/posekde/kernel"
	"go.viam.com/posekde/logging"
	"go.viam.com/posekde/spatialmath"
)

const (
	// Flags.
	flagConfig                 = "config"
	flagDebug                  = "debug"
	flagObservations           = "observations"
	flagQueries                = "queries"
	flagCount                  = "count"
	flagSeed                   = "seed"
	flagNeighbors              = "neighbors"
	flagRotationalBandwidth    = "rotational-bandwidth"
	flagTranslationalBandwidth = "translational-bandwidth"
	flagKernel                 = "kernel"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	var logger logging.Logger

	observationsFlag := &cli.StringFlag{
		Name:     flagObservations,
		Aliases:  []string{"o"},
		Required: true,
		Usage:    "read observations from JSON lines `FILE`",
	}
	queriesFlag := &cli.StringFlag{
		Name:     flagQueries,
		Aliases:  []string{"q"},
		Required: true,
		Usage:    "read query poses from JSON lines `FILE`",
	}

	return &cli.App{
		Name:      "posekde",
		Usage:     "kernel density estimation over rigid poses",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load kernel configuration from JSON `FILE`",
			},
			&cli.Float64Flag{
				Name:  flagRotationalBandwidth,
				Usage: "rotational concentration kappa, overrides the configuration file",
			},
			&cli.Float64Flag{
				Name:  flagTranslationalBandwidth,
				Usage: "translational spread sigma, overrides the configuration file",
			},
			&cli.StringFlag{
				Name:  flagKernel,
				Usage: "translational kernel family (gaussian or box), overrides the configuration file",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			logger = logging.NewBlankLogger("posekde")
			logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
			if !c.Bool(flagDebug) {
				logger.SetLevel(logging.INFO)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "evaluate",
				Usage: "evaluate the density of the observations at each query pose",
				Flags: []cli.Flag{observationsFlag, queriesFlag},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					est, err := newEstimator(c, cfg, logger)
					if err != nil {
						return err
					}
					queries, err := readObservationFile(c.String(flagQueries))
					if err != nil {
						return err
					}
					poses := lo.Map(queries, func(o labeledObservation, _ int) spatialmath.Pose { return o.Pose })
					values, err := est.EvaluateAll(c.Context, poses)
					if err != nil {
						return err
					}

					t := table.NewWriter()
					t.AppendHeader(table.Row{"#", "Pose", "Density"})
					for i, p := range poses {
						t.AppendRow(table.Row{i, p.String(), fmt.Sprintf("%.6g", values[i])})
					}
					fmt.Fprintln(c.App.Writer, t.Render())
					return nil
				},
			},
			{
				Name:  "sample",
				Usage: "draw poses from the density of the observations",
				Flags: []cli.Flag{
					observationsFlag,
					&cli.IntFlag{
						Name:    flagCount,
						Aliases: []string{"n"},
						Value:   100,
						Usage:   "number of poses to draw",
					},
					&cli.Uint64Flag{
						Name:  flagSeed,
						Usage: "random seed, overrides random_seed in the configuration file",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					est, err := newEstimator(c, cfg, logger)
					if err != nil {
						return err
					}
					seed := rand.Uint64()
					switch {
					case c.IsSet(flagSeed):
						seed = c.Uint64(flagSeed)
					case cfg.RandomSeed != nil:
						seed = *cfg.RandomSeed
					}
					logger.Debugw("sampling", "seed", seed, "count", c.Int(flagCount))

					sampler, err := est.NewSampler(rand.NewPCG(seed, seed))
					if err != nil {
						return err
					}
					poses, err := sampler.SampleN(c.Int(flagCount))
					if err != nil {
						return err
					}
					records := lo.Map(poses, func(p spatialmath.Pose, _ int) record {
						return newRecord(p, 1/float64(len(poses)), "")
					})
					return writeRecords(c.App.Writer, records)
				},
			},
			{
				Name:  "classify",
				Usage: "train a classifier on labeled observations and classify each query pose",
				Flags: []cli.Flag{observationsFlag, queriesFlag},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					model, err := kernel.NewModel(cfg)
					if err != nil {
						return err
					}
					training, err := readObservationFile(c.String(flagObservations))
					if err != nil {
						return err
					}
					if i := slices.IndexFunc(training, func(o labeledObservation) bool { return o.Label == "" }); i >= 0 {
						return errors.Errorf("training observation %d has no label", i)
					}
					byLabel := lo.GroupBy(training, func(o labeledObservation) string { return o.Label })
					labeled := lo.MapValues(byLabel, func(group []labeledObservation, _ string) []kernel.Observation {
						return lo.Map(group, func(o labeledObservation, _ int) kernel.Observation { return o.Observation })
					})

					clf, err := classifier.New(model, labeled, classifier.WithLogger(logger))
					if err != nil {
						return err
					}
					trainCfg, err := cfg.Training()
					if err != nil {
						return err
					}
					if _, err := clf.Train(trainCfg); err != nil {
						var nonConv *kernel.NonConvergenceError
						if !errors.As(err, &nonConv) {
							return err
						}
					}

					queries, err := readObservationFile(c.String(flagQueries))
					if err != nil {
						return err
					}
					t := table.NewWriter()
					t.AppendHeader(table.Row{"#", "Pose", "Label", "Score"})
					for i, q := range queries {
						label, score, err := clf.Classify(q.Pose)
						if err != nil {
							return errors.Wrapf(err, "query %d", i)
						}
						t.AppendRow(table.Row{i, q.Pose.String(), label, fmt.Sprintf("%.4f", score)})
					}
					fmt.Fprintln(c.App.Writer, t.Render())
					return nil
				},
			},
			{
				Name:  "bandwidth",
				Usage: "suggest a translational bandwidth for the observations",
				Flags: []cli.Flag{
					observationsFlag,
					&cli.IntFlag{
						Name:    flagNeighbors,
						Aliases: []string{"k"},
						Value:   kernel.DefaultBandwidthNeighbors,
						Usage:   "rank of the neighbor whose distance is used",
					},
				},
				Action: func(c *cli.Context) error {
					col, err := loadCollection(c)
					if err != nil {
						return err
					}
					meta := col.Index().MetaData()
					logger.Debugw("observation bounds", "count", meta.Size(), "center", meta.Center(), "extent", meta.Extent())
					sigma, err := kernel.SuggestTranslationalBandwidth(col, c.Int(flagNeighbors))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%.6g\n", sigma)
					return nil
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (kernel.Config, error) {
	overrides := map[string]interface{}{}
	if c.IsSet(flagRotationalBandwidth) {
		overrides["rotational_bandwidth"] = c.Float64(flagRotationalBandwidth)
	}
	if c.IsSet(flagTranslationalBandwidth) {
		overrides["translational_bandwidth"] = c.Float64(flagTranslationalBandwidth)
	}
	if c.IsSet(flagKernel) {
		overrides["translational_kernel"] = c.String(flagKernel)
	}
	return readConfig(c.String(flagConfig), overrides)
}

func loadCollection(c *cli.Context) (*kernel.Collection, error) {
	labeled, err := readObservationFile(c.String(flagObservations))
	if err != nil {
		return nil, err
	}
	return kernel.NewCollection(lo.Map(labeled, func(o labeledObservation, _ int) kernel.Observation {
		return o.Observation
	}))
}

func newEstimator(c *cli.Context, cfg kernel.Config, logger logging.Logger) (*kernel.Estimator, error) {
	model, err := kernel.NewModel(cfg)
	if err != nil {
		return nil, err
	}
	col, err := loadCollection(c)
	if err != nil {
		return nil, err
	}
	return kernel.NewEstimator(model, col, kernel.WithLogger(logger))
}
