package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/policystack/internal/output"
	"github.com/IvanBrykalov/policystack/policy/stack"
)

var (
	policiesFormat string
	describeFormat string
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List registered policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(policiesFormat)
		if err != nil {
			return err
		}
		reg := stack.DefaultRegistry()
		type row struct {
			Name     string `json:"name" yaml:"name"`
			Version  string `json:"version" yaml:"version"`
			HintSize int    `json:"hint_size" yaml:"hint_size"`
			Shim     bool   `json:"shim" yaml:"shim"`
		}
		var rows []row
		table := output.NewTableData("Name", "Version", "Hint", "Shim")
		for _, n := range reg.Names() {
			t, err := reg.Lookup(n)
			if err != nil {
				return err
			}
			v := fmt.Sprintf("%d.%d.%d", t.Version[0], t.Version[1], t.Version[2])
			rows = append(rows, row{t.Name, v, t.HintSize, t.Shim})
			table.AddRow(t.Name, v, strconv.Itoa(t.HintSize), strconv.FormatBool(t.Shim))
		}
		if format == output.FormatTable {
			return output.PrintTable(cmd.OutOrStdout(), table)
		}
		return output.Print(cmd.OutOrStdout(), format, rows)
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe STACK",
	Short: "Show the identity a policy stack would have",
	Long: `Validate a stack spec and print its combined name, version and hint size
without building it.

Example:
  policybench describe era+stats+lru`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(describeFormat)
		if err != nil {
			return err
		}
		d, err := stack.Describe(stack.DefaultRegistry(), args[0])
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return output.Print(cmd.OutOrStdout(), format, d)
		}
		return output.SimpleTable(cmd.OutOrStdout(), [][2]string{
			{"Name", d.Name},
			{"Version", fmt.Sprintf("%d.%d.%d", d.Version[0], d.Version[1], d.Version[2])},
			{"Hint size", strconv.Itoa(d.HintSize)},
			{"Stack", strconv.FormatBool(stack.IsStack(args[0]))},
		})
	},
}

func init() {
	policiesCmd.Flags().StringVarP(&policiesFormat, "output", "o", "table", "output format: table, json or yaml")
	describeCmd.Flags().StringVarP(&describeFormat, "output", "o", "table", "output format: table, json or yaml")
}
