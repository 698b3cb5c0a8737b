package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/born-ml/fcnet/internal/serialization"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	skipChecksum := fs.Bool("skip-checksum", false, "Do not verify the data checksum")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: fcnet inspect [-skip-checksum] <file.born>")
	}
	path := fs.Arg(0)

	r, err := serialization.OpenWithOptions(path, serialization.ReaderOptions{SkipChecksumValidation: *skipChecksum})
	if err != nil {
		return err
	}
	h := r.Header()

	fmt.Printf("file:       %s\n", path)
	fmt.Printf("format:     v%d, %s (fcnet %s)\n", h.FormatVersion, h.ModelType, h.Version)
	fmt.Printf("created:    %s (%s)\n", h.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(h.CreatedAt))
	fmt.Printf("flags:      %#x\n", r.Flags())
	if c := h.CheckpointMeta; c != nil {
		fmt.Printf("checkpoint: epoch %d, step %s, loss %.4f, val acc %.4f, %s %v\n",
			c.Epoch, humanize.Comma(c.Step), c.Loss, c.ValAcc, c.OptimizerType, c.OptimizerConfig)
	}
	if len(h.Metadata) > 0 {
		keys := make([]string, 0, len(h.Metadata))
		for k := range h.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("metadata:")
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, h.Metadata[k])
		}
	}

	fmt.Println("tensors:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	var total int64
	var elements int
	for _, name := range r.TensorNames() {
		meta, err := r.TensorInfo(name)
		if err != nil {
			return err
		}
		n := 1
		for _, d := range meta.Shape {
			n *= d
		}
		elements += n
		total += meta.Size
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%v\t%s\n", meta.Name, meta.DType, meta.Shape, humanize.Bytes(uint64(meta.Size)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("total:      %d tensors, %s values, %s\n",
		len(h.Tensors), humanize.Comma(int64(elements)), humanize.Bytes(uint64(total)))
	return nil
}
