// Command ppmcompare scores captured frames of two runs against each other.
//
// Frames are matched by number between files named <reference>*frame<N>.ppm
// and <compare>*frame<N>.ppm in one directory. MSE, PSNR and SSIM are
// printed per frame and averaged, and the table is written to a CSV file.
package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/andewx/vkshot/imgcmp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("ppmcompare", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	reference := flags.StringP("reference", "r", "", "reference image prefix (e.g. baseline_fp32)")
	compare := flags.StringP("compare", "c", "", "comparison image prefix (e.g. position_fp16)")
	dir := flags.StringP("directory", "d", "screenshots", "screenshots directory")
	output := flags.StringP("output", "o", "comparison_results.csv", "output CSV file")
	diff := flags.Bool("diff", false, "generate difference images")
	amplify := flags.Float64("diff-amplify", 10.0, "amplification factor for difference images")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *reference == "" || *compare == "" {
		fmt.Fprintln(stderr, "Error: --reference and --compare are required")
		flags.PrintDefaults()
		return 2
	}

	errColor := color.New(color.FgRed)
	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		errColor.Fprintf(stderr, "Error: Directory not found: %s\n", *dir)
		return 1
	}

	opts := imgcmp.Options{
		Dir:       *dir,
		Reference: *reference,
		Compare:   *compare,
		Amplify:   *amplify,
	}
	if *diff {
		opts.DiffDir = filepath.Join(*dir, "diff")
	}
	rep, err := imgcmp.CompareDir(opts)
	if err != nil {
		errColor.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rule := strings.Repeat("-", 70)
	fmt.Fprintf(stdout, "Found %d matching frame pairs\n", len(rep.Pairs))
	fmt.Fprintf(stdout, "Reference: %s\n", opts.Reference)
	fmt.Fprintf(stdout, "Compare:   %s\n", opts.Compare)
	fmt.Fprintln(stdout, rule)

	warn := color.New(color.FgYellow)
	for _, s := range rep.Skipped {
		warn.Fprintf(stderr, "Warning: Frame %d skipped: %v\n", s.Frame, s.Err)
	}
	for _, r := range rep.Results {
		fmt.Fprintf(stdout, "Frame %5d: MSE=%10.4f  PSNR=%8s dB  SSIM=%.6f\n",
			r.Frame, r.MSE, formatPSNR(r.PSNR), r.SSIM)
	}

	if avg, ok := rep.Average(); ok {
		fmt.Fprintln(stdout, rule)
		fmt.Fprintf(stdout, "AVERAGE:       MSE=%10.4f  PSNR=%8.2f dB  SSIM=%.6f\n\n", avg.MSE, avg.PSNR, avg.SSIM)
		fmt.Fprintln(stdout, "Quality Assessment:")
		g, line := imgcmp.AssessPSNR(avg.PSNR)
		gradeColor(g).Fprintf(stdout, "  %s\n", line)
		g, line = imgcmp.AssessSSIM(avg.SSIM)
		gradeColor(g).Fprintf(stdout, "  %s\n", line)
	}

	if err := imgcmp.SaveCSV(*output, rep.Results); err != nil {
		errColor.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "\nResults saved to: %s\n", *output)
	if opts.DiffDir != "" {
		fmt.Fprintf(stdout, "Difference images saved to: %s\n", opts.DiffDir)
	}
	return 0
}

func formatPSNR(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func gradeColor(g imgcmp.Grade) *color.Color {
	switch g {
	case imgcmp.Excellent:
		return color.New(color.FgGreen, color.Bold)
	case imgcmp.Good:
		return color.New(color.FgGreen)
	case imgcmp.Fair:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgRed)
}
