package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/cook/script"
	"github.com/chazu/pcgbridge/pkg/recook"
	"github.com/chazu/pcgbridge/pkg/translator"
	"github.com/chazu/pcgbridge/pkg/upload"
)

func newTranslateCmd(a *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "translate <script>",
		Short: "Cook one script and print the translated result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			pl, err := a.pipeline()
			if err != nil {
				return err
			}
			job, err := pl.job(args[0], p)
			if err != nil {
				return err
			}
			res, err := job.Controller.Request(cmd.Context(), job.Fingerprint, job.Cook)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), summarize(job.Controller.Name(), res))
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Script parameter as name=value (repeatable)")
	return cmd
}

func newFeedbackCmd(a *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "feedback <script>",
		Short: "Translate a script, feed its collections back upstream and translate them again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			pl, err := a.pipeline()
			if err != nil {
				return err
			}
			job, err := pl.job(args[0], p)
			if err != nil {
				return err
			}
			res, err := job.Controller.Request(cmd.Context(), job.Fingerprint, job.Cook)
			if err != nil {
				return err
			}

			var parts []*cook.Part
			for _, c := range res.Collections {
				ps, err := pl.uploader.Collection(c)
				if err != nil {
					return err
				}
				parts = append(parts, ps...)
			}
			node := cook.NewNode(job.Controller.Name() + "_input")
			again, err := pl.translator.Translate(cmd.Context(), node.Commit(parts...))
			if err != nil {
				return err
			}
			pl.logger.Info("collections fed back",
				zap.String("node", node.Name()),
				zap.Int("parts", len(parts)))
			return writeYAML(cmd.OutOrStdout(), summarize(node.Name(), again))
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Script parameter as name=value (repeatable)")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "batch <script>...",
		Short: "Cook several scripts in parallel and print every result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			pl, err := a.pipeline()
			if err != nil {
				return err
			}
			jobs := make([]recook.Job, 0, len(args))
			for _, path := range args {
				job, err := pl.job(path, p)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}
			outcomes, err := recook.NewExecutor(a.cfg.Parallelism, a.logger).Run(cmd.Context(), jobs)
			if err != nil {
				return err
			}
			var (
				out  []resultSummary
				errs []error
			)
			for _, o := range outcomes {
				if o.Err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", o.Node, o.Err))
					continue
				}
				out = append(out, summarize(o.Node, o.Result))
			}
			if err := writeYAML(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Script parameter applied to every script")
	return cmd
}

// pipeline is the wiring shared by the subcommands.
type pipeline struct {
	scriptOpts script.Options
	translator *translator.Translator
	uploader   *upload.Uploader
	logger     *zap.Logger
}

func (a *app) pipeline() (*pipeline, error) {
	conv, err := a.cfg.Conversion()
	if err != nil {
		return nil, err
	}
	return &pipeline{
		scriptOpts: script.Options{
			Timeout: a.cfg.ScriptTimeout,
			Cells:   a.cfg.Cells,
			Logger:  a.logger,
		},
		translator: translator.New(translator.Options{
			Prefix:     a.cfg.Prefix(),
			Conversion: conv,
			Gate:       a.cfg.GateParts,
			Logger:     a.logger,
		}),
		uploader: upload.New(upload.Options{
			Prefix:      a.cfg.Prefix(),
			Conversion:  conv,
			RotAndScale: a.cfg.UploadRotAndScale,
			Logger:      a.logger,
		}),
		logger: a.logger,
	}, nil
}

// job reads a script and binds it to a fresh node, engine and controller.
// Each node gets its own engine since an engine only commits its newest
// evaluation.
func (p *pipeline) job(path string, params map[string]any) (recook.Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return recook.Job{}, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	node := cook.NewNode(name)
	engine := script.New(p.scriptOpts)

	fpParams := make(map[string]any, len(params)+1)
	for k, v := range params {
		fpParams[k] = v
	}
	fpParams["\x00source"] = string(src)

	return recook.Job{
		Controller:  recook.NewController(name, p.translator, recook.WithLogger(p.logger)),
		Fingerprint: recook.FingerprintOf(fpParams),
		Cook: func(ctx context.Context) (cook.Session, error) {
			s, err := engine.Cook(ctx, node, string(src), params)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}, nil
}

// parseParams turns name=value pairs into typed script parameters.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", kv)
		}
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = i
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}
