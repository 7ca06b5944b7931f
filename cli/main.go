package main

import (
	"os"
	"runtime"
)

func init() {
	// The session's main thread is the thread that attaches.
	runtime.LockOSThread()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
