// Package rscript wraps the Rscript interpreter so the analysis stage can
// delegate differential-expression statistics to an R script.
package rscript
