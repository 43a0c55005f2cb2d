// Package configs provides the files embedded in the constellation binary.
//
// Templates are embedded at build time so they are available to every
// distribution without a separate install step:
//   - constellation.example.yaml: written by `constellation config init`
//   - queryables/*.yaml: built-in queryable term maps (ISO 19115, Dublin Core,
//     ebRIM 3.0 and 2.5), loaded by internal/queryable
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. Config file (--config, or ~/.config/constellation/constellation.yaml)
//  3. Environment variables (CONSTELLATION_*)
package configs

import "embed"

// ConfigTemplate is the annotated example configuration.
//
//go:embed constellation.example.yaml
var ConfigTemplate string

// Queryables holds the built-in queryable term maps under queryables/.
//
//go:embed queryables/*.yaml
var Queryables embed.FS
