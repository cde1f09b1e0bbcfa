package core

// Version is recorded in the worker registry and reported by the CLI.
const Version = "1.0.0"
