// Package config loads, normalizes, and validates ldseq configuration.
//
// Configuration is TOML with documented defaults, resolved from an explicit
// --config path, ~/.config/ldseq/config.toml, or a project-local ldseq.toml.
// Environment overrides (LDSEQ_THREADS, LDSEQ_MAX_JOBS, LDSEQ_SMALT,
// LDSEQ_SAMTOOLS, LDSEQ_FEATURECOUNTS, LDSEQ_RSCRIPT, LDSEQ_DB_DIR) take
// precedence over file values and are applied during normalization.
package config
