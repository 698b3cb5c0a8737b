package main

import (
	"flag"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/fcnet/internal/serialization"
	"github.com/born-ml/fcnet/internal/tensor"
)

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var (
		in    = fs.String("in", "", "Model or checkpoint in .born format (required)")
		out   = fs.String("out", "", "SafeTensors output path (required)")
		dtype = fs.String("dtype", "float32", "Storage precision: float16, float32 or float64")
	)
	_ = fs.Parse(args)
	if *in == "" || *out == "" {
		return errors.New("-in and -out are required")
	}
	dt, err := tensor.ParseDataType(*dtype)
	if err != nil {
		return err
	}

	dict, header, err := serialization.Load(*in)
	if err != nil {
		return err
	}
	meta := map[string]string{"model_type": header.ModelType}
	for k, v := range header.Metadata {
		meta[k] = v
	}
	dict = paramsOnly(dict)
	if err := serialization.ExportSafeTensors(*out, dict, dt, meta); err != nil {
		return errors.WithMessagef(err, "exporting %s", *out)
	}
	klog.Infof("exported %d tensors from %s", len(dict), *in)
	logFileSize("safetensors", *out)
	return nil
}
