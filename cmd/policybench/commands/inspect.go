package commands

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/policystack/internal/output"
	"github.com/IvanBrykalov/policystack/metastore"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/stack"
)

var (
	inspectStoreDir string
	inspectFormat   string
	inspectLimit    int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print saved mappings and per-layer hints",
	Long: `Open the metadata store written by "policybench run" and print its header
and mappings, most recently used first. Each hint blob is split into the
slices owned by the layers of the saved stack.

Examples:
  policybench inspect --store-dir /var/lib/policybench
  policybench inspect --store-dir /var/lib/policybench --limit 0 -o json`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectStoreDir, "store-dir", "", "metadata directory (overrides store.dir)")
	inspectCmd.Flags().StringVarP(&inspectFormat, "output", "o", "table", "output format: table, json or yaml")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "print at most this many mappings (0 = all)")
}

// hintSlice is the part of a hint blob owned by one layer.
type hintSlice struct {
	Layer string
	Size  int
}

type savedMapping struct {
	CBlock policy.CBlock     `json:"cblock" yaml:"cblock"`
	OBlock policy.OBlock     `json:"oblock" yaml:"oblock"`
	Rank   uint32            `json:"rank" yaml:"rank"`
	Hints  map[string]string `json:"hints,omitempty" yaml:"hints,omitempty"`
}

type inspection struct {
	Header   metastore.Header `json:"header" yaml:"header"`
	Total    int              `json:"total" yaml:"total"`
	Mappings []savedMapping   `json:"mappings" yaml:"mappings"`

	layout []hintSlice
}

func (in *inspection) Headers() []string {
	h := []string{"CBlock", "OBlock", "Rank"}
	for _, s := range in.layout {
		h = append(h, s.Layer)
	}
	return h
}

func (in *inspection) Rows() [][]string {
	rows := make([][]string, 0, len(in.Mappings))
	for _, m := range in.Mappings {
		row := []string{
			strconv.FormatUint(uint64(m.CBlock), 10),
			strconv.FormatUint(uint64(m.OBlock), 10),
			strconv.FormatUint(uint64(m.Rank), 10),
		}
		for _, s := range in.layout {
			row = append(row, m.Hints[s.Layer])
		}
		rows = append(rows, row)
	}
	return rows
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Store.Dir
	if cmd.Flags().Changed("store-dir") {
		dir = inspectStoreDir
	}
	if dir == "" {
		return errors.New("inspect needs an on-disk store: set --store-dir or store.dir")
	}
	format, err := output.ParseFormat(inspectFormat)
	if err != nil {
		return err
	}

	store, err := metastore.OpenBadger(dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	h, ms, err := store.Load()
	if err != nil {
		return err
	}
	layout, err := hintLayout(h.Name)
	if err != nil {
		return err
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].Rank < ms[j].Rank })
	in := &inspection{Header: h, Total: len(ms), layout: layout}
	for i, m := range ms {
		if inspectLimit > 0 && i == inspectLimit {
			break
		}
		in.Mappings = append(in.Mappings, savedMapping{
			CBlock: m.CBlock,
			OBlock: m.OBlock,
			Rank:   m.Rank,
			Hints:  splitHint(layout, m.Hint),
		})
	}

	out := cmd.OutOrStdout()
	if format != output.FormatTable {
		return output.Print(out, format, in)
	}
	if err := output.SimpleTable(out, [][2]string{
		{"Stack", h.Name},
		{"Version", fmt.Sprintf("%d.%d.%d", h.Version[0], h.Version[1], h.Version[2])},
		{"Hint size", strconv.Itoa(h.HintSize)},
		{"Cache blocks", strconv.FormatUint(uint64(h.CacheBlocks), 10)},
		{"Mappings", strconv.Itoa(len(ms))},
	}); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return output.PrintTable(out, in)
}

// hintLayout lists the layers of spec that own hint bytes, outermost first,
// which is also their order inside the blob.
func hintLayout(spec string) ([]hintSlice, error) {
	names, err := stack.Segments(spec)
	if err != nil {
		return nil, err
	}
	reg := stack.DefaultRegistry()
	var layout []hintSlice
	for _, n := range names {
		t, err := reg.Lookup(n)
		if err != nil {
			return nil, errors.Wrapf(err, "saved stack %q", spec)
		}
		if t.HintSize > 0 {
			layout = append(layout, hintSlice{Layer: strings.ToUpper(n), Size: t.HintSize})
		}
	}
	return layout, nil
}

func splitHint(layout []hintSlice, hint []byte) map[string]string {
	if len(layout) == 0 {
		return nil
	}
	out := make(map[string]string, len(layout))
	for _, s := range layout {
		if len(hint) < s.Size {
			break
		}
		out[s.Layer] = hex.EncodeToString(hint[:s.Size])
		hint = hint[s.Size:]
	}
	return out
}
