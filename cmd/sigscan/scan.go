package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scanforge/sigscan"
	"github.com/scanforge/sigscan/pkg/types"
)

var (
	scanRulesPath    string
	scanManifestPath string
	scanCompiled     bool
	scanRulesetRef   string
	scanTimeout      time.Duration
	scanOutputFormat string
)

var scanCmd = &cobra.Command{
	Use:   "scan <payload>",
	Short: "Scan a payload file against a ruleset",
	Long: `Compile a ruleset and scan one payload file against it.
Pass "-" as the payload to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRulesPath, "rules", "", "Path to rule source file or directory")
	scanCmd.Flags().StringVar(&scanManifestPath, "manifest", "", "Path to ruleset manifest")
	scanCmd.Flags().BoolVar(&scanCompiled, "compiled", false, "Treat --rules as a precompiled ruleset")
	scanCmd.Flags().StringVar(&scanRulesetRef, "ruleset", "", "Scan against a named alternate ruleset")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 60*time.Second, "Per-scan matching timeout")
	scanCmd.Flags().StringVar(&scanOutputFormat, "format", "human", "Output format: json, human")
}

func runScan(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(args[0], cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	scanner, err := newScanner(scanRulesPath, scanManifestPath, scanCompiled, scanTimeout, false)
	if err != nil {
		return err
	}
	defer scanner.Close()

	var result *types.ScanResult
	if scanRulesetRef != "" {
		result, err = scanner.ScanRuleset(scanRulesetRef, payload)
	} else {
		result, err = scanner.Scan(payload)
	}
	if err != nil {
		return err
	}

	switch scanOutputFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "human":
		return printHuman(cmd.OutOrStdout(), result)
	default:
		return fmt.Errorf("unknown output format: %s", scanOutputFormat)
	}
}

// newScanner builds a Scanner from either --manifest or --rules; the two
// are mutually exclusive.
func newScanner(rulesPath, manifestPath string, compiled bool, timeout time.Duration, hotReload bool) (*sigscan.Scanner, error) {
	if rulesPath != "" && manifestPath != "" {
		return nil, fmt.Errorf("--rules and --manifest are mutually exclusive")
	}

	opts := []sigscan.Option{sigscan.WithTimeout(timeout)}
	if hotReload {
		opts = append(opts, sigscan.WithHotReload())
	}

	if manifestPath != "" {
		return sigscan.NewScannerFromManifest(manifestPath, opts...)
	}
	if rulesPath == "" {
		return nil, fmt.Errorf("either --rules or --manifest is required")
	}
	if compiled {
		opts = append(opts, sigscan.WithCompiled())
	}
	return sigscan.NewScanner(rulesPath, opts...)
}

func readPayload(arg string, stdin io.Reader) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(arg)
}

var (
	sigStyle    = color.New(color.Bold, color.FgHiBlue)
	offsetStyle = color.New(color.FgHiGreen)
	valueStyle  = color.New(color.FgYellow)
)

func printHuman(out io.Writer, result *types.ScanResult) error {
	if len(result.Records) == 0 {
		fmt.Fprintf(out, "no matches (ruleset %s, generation %d)\n", result.RuleSetID, result.Generation)
		return nil
	}

	for _, rec := range result.Records {
		sigStyle.Fprint(out, rec.SignatureID)
		if len(rec.Tags) > 0 {
			fmt.Fprintf(out, " [%v]", rec.Tags)
		}
		fmt.Fprintln(out)
		for _, m := range rec.Matches {
			fmt.Fprintf(out, "  %s @ %s: %s\n",
				m.Identifier,
				offsetStyle.Sprint(m.Offset),
				valueStyle.Sprint(printable(m.Value)))
		}
	}
	fmt.Fprintf(out, "%d signature(s) matched\n", len(result.Records))
	return nil
}

// printable renders matched bytes for terminal output, hex-escaping
// anything outside printable ASCII.
func printable(value []byte) string {
	buf := make([]byte, 0, len(value))
	for _, c := range value {
		if c >= 0x20 && c <= 0x7e {
			buf = append(buf, c)
		} else {
			buf = append(buf, fmt.Sprintf("\\x%02x", c)...)
		}
	}
	return string(buf)
}
