package cli

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/domain"
)

type generateOptions struct {
	count  int
	ops    []string
	min    int
	max    int
	seed   int64
	format string
}

// NewGenerateCmd prints sample challenges, either under the duel rules or under
// custom operator and operand constraints.
func NewGenerateCmd() *cobra.Command {
	opts := generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print sample arithmetic challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			constrained := cmd.Flags().Changed("ops") || cmd.Flags().Changed("min") || cmd.Flags().Changed("max")
			return runGenerate(cmd.OutOrStdout(), opts, constrained)
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 10, "number of challenges")
	cmd.Flags().StringSliceVar(&opts.ops, "ops", nil, "operators to draw from (add,subtract,multiply,divide)")
	cmd.Flags().IntVar(&opts.min, "min", 1, "minimum operand")
	cmd.Flags().IntVar(&opts.max, "max", 100, "maximum operand")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (0 uses the clock)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or yaml")
	return cmd
}

func runGenerate(out io.Writer, opts generateOptions, constrained bool) error {
	if opts.count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.count)
	}
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := app.NewChallengeGeneratorWithSource(rand.NewSource(seed))

	ops := make([]domain.Operator, 0, len(opts.ops))
	for _, raw := range opts.ops {
		op, err := domain.ParseOperator(raw)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	challenges := make([]domain.Challenge, 0, opts.count)
	for i := 0; i < opts.count; i++ {
		if !constrained {
			challenges = append(challenges, gen.Generate())
			continue
		}
		c, err := gen.GenerateWithConstraints(ops, opts.min, opts.max)
		if err != nil {
			return err
		}
		challenges = append(challenges, c)
	}

	switch opts.format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(challenges)
	case "text":
		for i, c := range challenges {
			if _, err := fmt.Fprintf(out, "%3d. %s = %d\n", i+1, c.Question, c.Answer); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", opts.format)
}
