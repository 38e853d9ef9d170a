package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazodiac/bafe/pkg/compliance"
	"github.com/bazodiac/bafe/pkg/issues"
	"github.com/bazodiac/bafe/pkg/refdata"
)

func (a *app) readRequest(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

func (a *app) newValidator(now string) (*compliance.Validator, error) {
	opts := []compliance.Option{
		compliance.WithLogger(a.logger),
		compliance.WithRulesets(a.rulesets()),
	}
	if now != "" {
		t, err := refdata.ParseTimestamp(now)
		if err != nil {
			return nil, exitf(exitUsage, "--now: %v", err)
		}
		opts = append(opts, compliance.WithClock(func() time.Time { return t }))
	}
	return compliance.New(opts...), nil
}

func (a *app) validateCmd() *cobra.Command {
	var file, now string
	var canonical, summary bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a request document and print the response",
		Long: `Validate reads a ValidateRequest document from --file or stdin and prints
the ValidateResponse. It exits 0 for COMPLIANT or DEGRADED, 1 for
NON_COMPLIANT, 2 for a rejected request and 3 for an internal defect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readRequest(file)
			if err != nil {
				return exitf(exitUsage, "read request: %v", err)
			}
			v, err := a.newValidator(now)
			if err != nil {
				return err
			}
			resp, err := v.ValidateJSON(cmd.Context(), raw)
			if err != nil {
				return validationExit(err)
			}

			var out []byte
			switch {
			case summary:
				renderSummary(a.stdout, resp)
			case canonical:
				out, err = resp.Canonical()
			default:
				out, err = json.MarshalIndent(resp, "", "  ")
			}
			if err != nil {
				return exitf(exitDefect, "encode response: %v", err)
			}
			if out != nil {
				if _, err := fmt.Fprintln(a.stdout, string(out)); err != nil {
					return err
				}
			}
			if resp.ComplianceStatus == issues.NonCompliant {
				return exitf(exitNonCompliant, "%s", resp.ComplianceStatus)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file (- for stdin)")
	cmd.Flags().StringVar(&now, "now", "", "evaluation time when the request has no now_utc_override")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "print canonical JSON instead of indented JSON")
	cmd.Flags().BoolVar(&summary, "summary", false, "print a status table instead of JSON")
	cmd.MarkFlagsMutuallyExclusive("canonical", "summary")
	return cmd
}

func (a *app) fingerprintCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the configuration fingerprint of a request document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readRequest(file)
			if err != nil {
				return exitf(exitUsage, "read request: %v", err)
			}
			v, err := a.newValidator("")
			if err != nil {
				return err
			}
			resp, err := v.ValidateJSON(cmd.Context(), raw)
			if err != nil {
				return validationExit(err)
			}
			_, err = fmt.Fprintln(a.stdout, resp.Evidence.Reproducibility.ConfigFingerprint)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file (- for stdin)")
	return cmd
}
