package config

const (
	defaultWorkDir         = "."
	defaultFastqDir        = "FASTQ"
	defaultBamDir          = "Bams"
	defaultLogDir          = "Logs"
	defaultResultsDir      = "Results"
	defaultStateDir        = "~/.local/share/ldseq"
	defaultThreads         = 8
	defaultMaxJobs         = 25
	defaultSmaltBinary     = "smalt"
	defaultSamtoolsBinary  = "samtools"
	defaultFeatureCounts   = "featureCounts"
	defaultRscriptBinary   = "Rscript"
	defaultReferencePrefix = "Ld1S"
	defaultMinQuality      = 30
	defaultFeatureType     = "exon"
	defaultAttribute       = "gene_id"
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultRetentionDays   = 60
	defaultDebounceSeconds = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			FastqDir:   defaultFastqDir,
			BamDir:     defaultBamDir,
			LogDir:     defaultLogDir,
			ResultsDir: defaultResultsDir,
			StateDir:   defaultStateDir,
		},
		Pipeline: Pipeline{
			Threads: defaultThreads,
			MaxJobs: defaultMaxJobs,
		},
		Tools: Tools{
			Smalt:         defaultSmaltBinary,
			Samtools:      defaultSamtoolsBinary,
			FeatureCounts: defaultFeatureCounts,
			Rscript:       defaultRscriptBinary,
		},
		Reference: Reference{
			Prefix: defaultReferencePrefix,
		},
		Counting: Counting{
			MinQuality:  defaultMinQuality,
			FeatureType: defaultFeatureType,
			Attribute:   defaultAttribute,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunStarted:     true,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
		Watch: Watch{
			DebounceSeconds: defaultDebounceSeconds,
		},
	}
}
