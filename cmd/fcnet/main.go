// Command fcnet trains and inspects fully-connected softmax classifiers.
//
// Usage:
//
//	fcnet [klog flags] <command> [flags]
//
// Commands:
//
//	train      Train a network from a YAML configuration
//	evaluate   Measure the accuracy of a saved model
//	gradcheck  Compare analytic and numerical gradients of a random network
//	inspect    Print the tensors and metadata of a .born file
//	export     Convert the parameters of a .born file to SafeTensors
//	version    Show version
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

const version = "v0.1.0"

type command struct {
	name string
	help string
	run  func(args []string) error
}

var commands = []command{
	{"train", "Train a network from a YAML configuration", runTrain},
	{"evaluate", "Measure the accuracy of a saved model", runEvaluate},
	{"gradcheck", "Compare analytic and numerical gradients of a random network", runGradCheck},
	{"inspect", "Print the tensors and metadata of a .born file", runInspect},
	{"export", "Convert the parameters of a .born file to SafeTensors", runExport},
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "fcnet %s - fully-connected softmax classifiers\n\n", version)
	_, _ = fmt.Fprintf(out, "Usage:\n  fcnet [klog flags] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		_, _ = fmt.Fprintf(out, "  %-10s %s\n", c.name, c.help)
	}
	_, _ = fmt.Fprintf(out, "  %-10s %s\n", "version", "Show version")
	_, _ = fmt.Fprintf(out, "\nRun 'fcnet <command> -h' for the flags of a command.\n")
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	if name == "version" {
		fmt.Printf("fcnet %s\n", version)
		return
	}
	for _, c := range commands {
		if c.name == name {
			if err := c.run(args); err != nil {
				klog.Fatalf("%s: %+v", name, err)
			}
			return
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}
