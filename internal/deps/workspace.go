package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"ldseq/internal/config"
	"ldseq/internal/ledger"
)

// diskFloor is the free space below which a run is unlikely to finish;
// sorted BAM output for a single sample can run to gigabytes.
const diskFloor = 1 << 30

// CheckWorkspace reports on what ldseq needs at run time beyond the tools:
// the FASTQ input contract, write access to the workspace, free disk, and
// the run ledger.
func CheckWorkspace(cfg *config.Config) []Status {
	return []Status{
		checkFastqDir(cfg.Paths.FastqDir),
		checkWritable(cfg.Paths.WorkDir),
		checkDisk(cfg.Paths.WorkDir),
		checkLedger(cfg),
	}
}

// CheckReference reports the reference inputs: the genome FASTA required
// for mapping, the aligner index pair built on demand, and the GTF
// annotation that only the counting pass needs.
func CheckReference(cfg *config.Config) []Status {
	genome := Status{Name: "reference genome", Command: cfg.GenomePath(), Description: "smalt mapping target"}
	if info, err := os.Stat(cfg.GenomePath()); err == nil && info.Size() > 0 {
		genome.Available = true
	} else {
		genome.Detail = "place the FASTA at this path"
	}

	smi, sma := cfg.IndexPaths()
	index := Status{Name: "aligner index", Command: smi, Description: "smalt index pair", Optional: true}
	if fileNonEmpty(smi) && fileNonEmpty(sma) {
		index.Available = true
	} else {
		index.Detail = "built automatically before the next run"
	}

	annotation := Status{Name: "annotation", Command: cfg.AnnotationPath(), Description: "featureCounts input (ldseq count)", Optional: true}
	if fileNonEmpty(cfg.AnnotationPath()) {
		annotation.Available = true
	} else {
		annotation.Detail = "place the GTF at this path before ldseq count"
	}

	return []Status{genome, index, annotation}
}

func checkFastqDir(dir string) Status {
	status := Status{Name: "FASTQ directory", Command: dir, Description: "paired read input"}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		status.Detail = "directory does not exist; runs fail at startup"
		return status
	}
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	if !info.IsDir() {
		status.Detail = "not a directory"
		return status
	}
	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		status.Detail = fmt.Sprintf("not readable: %v", err)
		return status
	}
	status.Available = true
	return status
}

func checkWritable(dir string) Status {
	status := Status{Name: "workspace directory", Command: dir, Description: "output artifacts"}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		status.Detail = fmt.Sprintf("not writable: %v", err)
		return status
	}
	status.Available = true
	return status
}

func checkDisk(dir string) Status {
	status := Status{Name: "free disk", Command: dir, Description: "BAM output space", Optional: true}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		status.Detail = fmt.Sprintf("statfs: %v", err)
		return status
	}
	free := stat.Bavail * uint64(stat.Bsize)
	status.Detail = humanize.IBytes(free) + " available"
	if free < diskFloor {
		status.Detail += "; mapping output needs more room"
		return status
	}
	status.Available = true
	return status
}

func checkLedger(cfg *config.Config) Status {
	status := Status{Name: "run ledger", Command: cfg.LedgerPath(), Description: "run history"}
	store, err := ledger.Open(cfg)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	_ = store.Close()
	status.Available = true
	return status
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
