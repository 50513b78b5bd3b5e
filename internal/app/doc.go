// Package app contains the core application logic. It wires manifests,
// storage, the native executor and the script manager together, and runs
// one command against them, decoupled from any specific entrypoint like a
// CLI.
package app
