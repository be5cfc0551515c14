// Package common holds identifiers shared across GeneMarket binaries.
package common

// PackageName namespaces metrics and logs.
const PackageName = "genemarket"

// Version is set at build time via -ldflags.
var Version = "dev"
