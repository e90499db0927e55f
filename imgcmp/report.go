package imgcmp

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/andewx/vkshot/ppm"
)

// InfPSNRScore stands in for an infinite PSNR when averaging.
const InfPSNRScore = 100.0

// ErrNoPairs is returned by CompareDir when no frame has both a reference
// and a comparison capture.
var ErrNoPairs = errors.New("imgcmp: no matching frames found")

var frameRE = regexp.MustCompile(`frame(\d+)\.ppm$`)

// FrameNumber extracts N from a name ending in "frame<N>.ppm".
func FrameNumber(name string) (int, bool) {
	m := frameRE.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Pair is a reference and a candidate capture of the same frame.
type Pair struct {
	Frame     int
	Reference string
	Compare   string
}

// MatchFrames pairs the files of dir starting with refPrefix with those
// starting with cmpPrefix by frame number. A name matching both prefixes
// counts as a reference. Pairs are sorted by frame.
func MatchFrames(dir, refPrefix, cmpPrefix string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ref := make(map[int]string)
	cmp := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".ppm") {
			continue
		}
		frame, ok := FrameNumber(name)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(name, refPrefix):
			ref[frame] = name
		case strings.HasPrefix(name, cmpPrefix):
			cmp[frame] = name
		}
	}

	var pairs []Pair
	for frame, r := range ref {
		if c, ok := cmp[frame]; ok {
			pairs = append(pairs, Pair{Frame: frame, Reference: r, Compare: c})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Frame < pairs[j].Frame })
	return pairs, nil
}

// Result holds the scores of one frame.
type Result struct {
	Frame int
	MSE   float64
	PSNR  float64
	SSIM  float64
}

// Compare scores cmp against ref.
func Compare(frame int, ref, cmp *ppm.Image) (Result, error) {
	mse, err := MSE(ref, cmp)
	if err != nil {
		return Result{}, err
	}
	s, err := SSIM(ref, cmp)
	if err != nil {
		return Result{}, err
	}
	return Result{Frame: frame, MSE: mse, PSNR: psnrFromMSE(mse), SSIM: s}, nil
}

// Average returns the mean scores of results. Infinite PSNRs count as
// InfPSNRScore. ok is false for an empty slice.
func Average(results []Result) (avg Result, ok bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	for _, r := range results {
		avg.MSE += r.MSE
		avg.SSIM += r.SSIM
		if math.IsInf(r.PSNR, 1) {
			avg.PSNR += InfPSNRScore
		} else {
			avg.PSNR += r.PSNR
		}
	}
	n := float64(len(results))
	avg.MSE /= n
	avg.PSNR /= n
	avg.SSIM /= n
	return avg, true
}

// Options configures CompareDir.
type Options struct {
	Dir       string
	Reference string
	Compare   string
	// DiffDir receives diff_frame<N>.png images when non-empty.
	DiffDir string
	Amplify float64
}

// Skipped records a pair that could not be scored.
type Skipped struct {
	Pair
	Err error
}

// Report is the outcome of CompareDir.
type Report struct {
	// Pairs lists every matched frame, scored or skipped.
	Pairs   []Pair
	Results []Result
	Skipped []Skipped
}

// Average of the scored frames.
func (r *Report) Average() (Result, bool) {
	return Average(r.Results)
}

// CompareDir scores every matched pair of opts.Dir. Pairs whose images
// differ in size or fail to decode are skipped; I/O errors abort the run.
func CompareDir(opts Options) (*Report, error) {
	pairs, err := MatchFrames(opts.Dir, opts.Reference, opts.Compare)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w for prefixes '%s' and '%s'", ErrNoPairs, opts.Reference, opts.Compare)
	}
	if opts.DiffDir != "" {
		if err := os.MkdirAll(opts.DiffDir, 0o755); err != nil {
			return nil, err
		}
	}

	rep := &Report{Pairs: pairs}
	for _, p := range pairs {
		ref, cmp, err := readPair(opts.Dir, p)
		if errors.Is(err, ppm.ErrFormat) {
			rep.Skipped = append(rep.Skipped, Skipped{Pair: p, Err: err})
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := rep.score(p, ref, cmp, opts); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func readPair(dir string, p Pair) (ref, cmp *ppm.Image, err error) {
	if ref, err = ppm.ReadFile(filepath.Join(dir, p.Reference)); err != nil {
		return nil, nil, err
	}
	if cmp, err = ppm.ReadFile(filepath.Join(dir, p.Compare)); err != nil {
		return nil, nil, err
	}
	return ref, cmp, nil
}

// score records the result of one decoded pair and writes its diff image.
func (r *Report) score(p Pair, ref, cmp *ppm.Image, opts Options) error {
	res, err := Compare(p.Frame, ref, cmp)
	if err != nil {
		r.Skipped = append(r.Skipped, Skipped{Pair: p, Err: err})
		return nil
	}
	r.Results = append(r.Results, res)
	if opts.DiffDir == "" {
		return nil
	}
	path := filepath.Join(opts.DiffDir, fmt.Sprintf("diff_frame%d.png", p.Frame))
	return writeDiff(path, ref, cmp, opts.Amplify)
}

func writeDiff(path string, ref, cmp *ppm.Image, amplify float64) (err error) {
	d, err := Diff(ref, cmp, amplify)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return png.Encode(f, d)
}

// WriteCSV writes one row per result and, when there are results, a final
// AVERAGE row.
func WriteCSV(w io.Writer, results []Result) error {
	rows := [][]string{{"frame", "mse", "psnr", "ssim"}}
	for _, r := range results {
		rows = append(rows, []string{strconv.Itoa(r.Frame), fmtFloat(r.MSE), fmtFloat(r.PSNR), fmtFloat(r.SSIM)})
	}
	if avg, ok := Average(results); ok {
		rows = append(rows, []string{"AVERAGE", fmtFloat(avg.MSE), fmtFloat(avg.PSNR), fmtFloat(avg.SSIM)})
	}
	return csv.NewWriter(w).WriteAll(rows)
}

// SaveCSV writes the CSV report to path.
func SaveCSV(path string, results []Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return WriteCSV(f, results)
}

func fmtFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
