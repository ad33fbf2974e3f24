package internal

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/xzpkg/internal/build"
	"github.com/goplus/xzpkg/internal/env"
	"github.com/goplus/xzpkg/internal/pipeline"
	"github.com/goplus/xzpkg/recipe"
)

type planOutput struct {
	Version   string           `yaml:"version"`
	Key       string           `yaml:"key"`
	Config    recipe.Config    `yaml:"config"`
	Strategy  string           `yaml:"strategy"`
	Plan      *build.BuildPlan `yaml:"plan"`
	Commands  []string         `yaml:"commands"`
	Artifacts []string         `yaml:"artifacts"`
}

func newPlanCmd() *cobra.Command {
	var (
		s     settingsFlags
		all   bool
		wsDir string
	)
	cmd := &cobra.Command{
		Use:   "plan [version]",
		Short: "Show how liblzma would be built and packaged",
		Long: `Plan prints the build strategy, the commands it runs and the expected artifacts
as YAML. Nothing is downloaded or built. With --all every supported combination
of the recipe matrix is planned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := versionArg(args)
			if err != nil {
				return err
			}
			var configs []recipe.Config
			if all {
				for _, assign := range recipe.Supported.Expand() {
					configs = append(configs, recipe.FromAssignment(&recipe.Supported, assign))
				}
			} else {
				cfg, err := s.config(cmd.Flags())
				if err != nil {
					return err
				}
				configs = append(configs, cfg)
			}
			out, err := planAll(cmd, wsDir, version, configs, all)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			if all {
				return enc.Encode(out)
			}
			return enc.Encode(out[0])
		},
	}
	s.register(cmd.Flags())
	cmd.Flags().BoolVar(&all, "all", false, "Plan every supported combination")
	cmd.Flags().StringVar(&wsDir, "workspace", "", "Workspace directory used for planned paths")
	return cmd
}

// planAll plans each config. With skipInvalid, configurations rejected
// by configure are logged and left out.
func planAll(cmd *cobra.Command, ws, version string, configs []recipe.Config, skipInvalid bool) ([]planOutput, error) {
	if ws == "" {
		dir, err := env.Dir()
		if err != nil {
			return nil, err
		}
		ws = dir
	}
	log := newLogger(cmd)
	p := pipeline.New(ws, log)

	var out []planOutput
	for _, raw := range configs {
		res, err := p.Plan(raw, version)
		if err != nil {
			if skipInvalid && errors.Is(err, recipe.ErrConfig) {
				log.WithFields(logrus.Fields{"key": raw.Key()}).Debugf("skipping: %v", err)
				continue
			}
			return nil, err
		}
		po := planOutput{
			Version:  res.Version,
			Key:      res.Config.Key(),
			Config:   res.Config,
			Strategy: res.Plan.Strategy,
			Plan:     res.Plan,
		}
		for _, c := range res.Plan.Commands() {
			po.Commands = append(po.Commands, c.String())
		}
		for _, r := range res.Rules {
			po.Artifacts = append(po.Artifacts, r.String())
		}
		out = append(out, po)
	}
	return out, nil
}
