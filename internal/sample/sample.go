package sample

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Sample describes one paired-end sequencing sample and the artifact paths
// its chain owns. The set is fixed at discovery; no two samples share a path.
type Sample struct {
	Base        string
	R1          string
	R2          string
	UnsortedBAM string
	SortedBAM   string
	IndexPath   string
	SmaltLog    string
	SamtoolsLog string
}

// SkipReason classifies why a discovered R1 file produced no sample.
type SkipReason string

const (
	SkipMissingPair   SkipReason = "missing_pair"
	SkipDuplicateBase SkipReason = "duplicate_base"
)

// Skipped records an R1 file that was discovered but not scheduled.
type Skipped struct {
	Base   string
	R1     string
	R2     string
	Reason SkipReason
}

// readOnePattern matches *_R1.fastq.gz and *_R1_<digits>.fastq.gz. The
// numeric suffix carries over to the mate name but not to the sample base.
var readOnePattern = regexp.MustCompile(`^(.+)_R1((?:_\d+)?)\.fastq\.gz$`)

// New builds the sample for a confirmed read pair.
func New(base, r1, r2, bamDir, logDir string) Sample {
	sorted := filepath.Join(bamDir, base+".sorted.bam")
	return Sample{
		Base:        base,
		R1:          r1,
		R2:          r2,
		UnsortedBAM: filepath.Join(bamDir, base+".bam"),
		SortedBAM:   sorted,
		IndexPath:   sorted + ".bai",
		SmaltLog:    filepath.Join(logDir, base+".smalt.log"),
		SamtoolsLog: filepath.Join(logDir, base+".samtools.log"),
	}
}

// Discover scans fastqDir for R1 reads, derives mates by marker substitution,
// and returns samples in directory name order. R1 files whose mate is absent
// or whose base was already claimed are reported as skipped, never as errors.
func Discover(fastqDir, bamDir, logDir string) ([]Sample, []Skipped, error) {
	entries, err := os.ReadDir(fastqDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read fastq directory %s: %w", fastqDir, err)
	}

	claimed := make(map[string]struct{})
	var samples []Sample
	var skipped []Skipped
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := readOnePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		base, suffix := match[1], match[2]
		r1 := filepath.Join(fastqDir, entry.Name())
		r2 := filepath.Join(fastqDir, base+"_R2"+suffix+".fastq.gz")

		if _, dup := claimed[base]; dup {
			skipped = append(skipped, Skipped{Base: base, R1: r1, R2: r2, Reason: SkipDuplicateBase})
			continue
		}
		claimed[base] = struct{}{}

		if info, err := os.Stat(r2); err != nil || info.IsDir() {
			skipped = append(skipped, Skipped{Base: base, R1: r1, R2: r2, Reason: SkipMissingPair})
			continue
		}

		samples = append(samples, New(base, r1, r2, bamDir, logDir))
	}
	return samples, skipped, nil
}

// DiscoverSorted lists coordinate-sorted BAMs under bamDir in name order.
// A missing directory yields an empty set; counting and templating treat
// that as nothing to do rather than an error.
func DiscoverSorted(bamDir string) ([]string, error) {
	entries, err := os.ReadDir(bamDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bam directory %s: %w", bamDir, err)
	}

	var bams []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sorted.bam") {
			continue
		}
		bams = append(bams, filepath.Join(bamDir, entry.Name()))
	}
	return bams, nil
}

// BaseFromSorted recovers the sample base from a sorted BAM path.
func BaseFromSorted(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".sorted.bam")
}
