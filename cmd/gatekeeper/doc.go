// Command gatekeeper scores detection tracks for physical plausibility.
//
// Subcommands evaluate a single clip, evaluate a directory of samples in
// parallel, run the local HTTP agent, list stored evaluations, check the
// ffmpeg toolchain and render synthetic clips for detection documents.
package main
