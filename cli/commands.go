package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sliverarmory/chronohook/dlfcn"
)

var version = "dev"

var (
	findSubstring string
	lookupSymbols []string
	delays        []time.Duration
	frames        int
	fromThread    bool
)

var libsCmd = &cobra.Command{
	Use:   "libs",
	Short: "List the libraries recorded at attach",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := attach(cmd)
		if err != nil {
			return err
		}
		defer session.Close()

		out := cmd.OutOrStdout()
		if findSubstring != "" {
			lib, ok := session.Registry().Find(findSubstring)
			if !ok {
				return fmt.Errorf("no loaded library matches %q", findSubstring)
			}
			fmt.Fprintln(out, lib)
			return nil
		}
		for _, lib := range session.Registry().Libraries() {
			fmt.Fprintln(out, lib)
		}
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <shared library>...",
	Short: "Load libraries through the intercepted loader and look up symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := attach(cmd)
		if err != nil {
			return err
		}
		defer session.Close()

		out := cmd.OutOrStdout()
		for _, path := range args {
			handle := dlfcn.Open(path, dlfcn.Lazy)
			if handle == 0 {
				return fmt.Errorf("dlopen %s: %s", path, dlfcn.Error())
			}
			fmt.Fprintf(out, "%s\t%#x\n", path, uintptr(handle))
			for _, name := range lookupSymbols {
				fmt.Fprintf(out, "  %s\t%#x\n", name, dlfcn.Sym(handle, name))
			}
		}
		fmt.Fprintf(out, "registry: %d libraries\n", session.Registry().Len())
		return nil
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run sleeps and frame boundaries against the logical clock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := attach(cmd)
		if err != nil {
			return err
		}
		defer session.Close()

		run := func() {
			for _, d := range delays {
				session.Sleep().Sleep(d)
			}
		}

		start := time.Now()
		for i := 0; i < frames; i++ {
			if fromThread {
				done := make(chan struct{})
				go func() {
					defer close(done)
					run()
				}()
				<-done
			} else {
				run()
			}
			session.EnterFrameBoundary()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "frames:  %d\n", session.Timer().Frames())
		fmt.Fprintf(out, "logical: %s\n", session.Timer().Ticks())
		fmt.Fprintf(out, "folded:  %s\n", session.Timer().Delayed())
		fmt.Fprintf(out, "real:    %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	libsCmd.Flags().StringVar(&findSubstring, "find", "", "Print only the first library containing this substring")
	openCmd.Flags().StringSliceVar(&lookupSymbols, "sym", nil, "Symbols to look up in each opened library")
	sleepCmd.Flags().DurationSliceVar(&delays, "delay", []time.Duration{5 * time.Millisecond}, "Delays requested each frame")
	sleepCmd.Flags().IntVar(&frames, "frames", 60, "Frames to run")
	sleepCmd.Flags().BoolVar(&fromThread, "thread", false, "Sleep from a secondary thread instead of the main thread")
}
