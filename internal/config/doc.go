// Package config defines the format-agnostic manifest model for the
// application, along with the Loader interface implemented per file format.
//
// The `config.Model` is the single source of truth for wiring storage, the
// native executor, resolvers and the dev-server subscription. Concrete
// loaders for HCL, YAML and TOML live in sub-packages; Load discovers
// manifest files and dispatches each one to the loader owning its extension.
package config
